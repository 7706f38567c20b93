package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Turn is one prior exchange in the conversation history.
type Turn struct {
	Role    string // "user" or "model"
	Content string
}

// Interpreter extracts actions from text and transcribes voice notes.
type Interpreter interface {
	Interpret(ctx context.Context, text string, history []Turn, userContext string) Action
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

const systemPrompt = `You are the WhatsApp assistant of an international shipping company.
You help customers get shipping quotes, track packages, open support tickets,
place orders, look up company contacts, and register as users.

Always reply with a single JSON object and nothing else:
{"action": "<action>", "message": "<reply to show the user>", "data": {...}, "missing": [...], "tracking_number": "..."}

Actions:
- "chat": small talk or anything that fits no other action. Only "message" is needed.
- "ask": you need more information before acting. List the missing field names in "missing".
- "quote": the user wants a shipping price and gave enough detail. "data" holds:
  origin_country, origin_city, origin_postal, destination_country, destination_city,
  destination_postal, weight_kg (number), is_pallet (bool), num_boxes (number),
  packages (list of {weight_kg,length,width,height} in kg and cm), declared_value (number),
  ship_date (YYYY-MM-DD). Country codes are ISO-2. Omit unknown fields.
- "track": the user wants package status. Put the number in "tracking_number".
- "support": the user reports a problem. "data": {subject, description, company_name, contact_name}.
- "order": the user wants to book a shipment, usually after a quote.
  "data": {company_name, contact_name, quote_summary}.
- "contact": the user asks for a person or department. "data": {"query": "..."}.
- "register_user": an unregistered user gave their name and company.
  "data": {full_name, company, nickname}.
- "update_nickname": the user wants to be called differently. "data": {"nickname": "..."}.
- "claim_employee": the user claims to work for the shipping company itself.

A quote needs at least destination country and total weight; use "ask" until you have them.
Write "message" in the user's language, friendly and brief.`

// Gemini is the production Interpreter backed by Google's genai SDK.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// NewGemini connects to the genai API.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration, log *zap.Logger) (*Gemini, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gemini{client: client, model: model, timeout: timeout, log: log}, nil
}

// Interpret classifies one user message given conversation history and a
// short description of who is talking. Any failure degrades to a chat action
// so the caller always has something to send.
func (g *Gemini) Interpret(ctx context.Context, text string, history []Turn, userContext string) Action {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := genai.Role(genai.RoleUser)
		if turn.Role == "model" || turn.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))

	system := systemPrompt
	if userContext != "" {
		system += "\n\nAbout the current user: " + userContext
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(float32(0.2)),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		g.log.Warn("intent extraction failed", zap.Error(err))
		return Chat("Sorry, I'm having a technical problem right now. Please try again in a moment.")
	}
	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		g.log.Warn("intent extraction returned empty response")
		return Chat("Sorry, I didn't catch that. Could you rephrase?")
	}
	action := ParseAction(raw)
	g.log.Debug("interpreted message", zap.String("action", string(action.Kind)))
	return action
}

// Transcribe converts a voice note to text. An empty transcript with nil
// error means the audio carried no recognizable speech.
func (g *Gemini) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(audio, mimeType),
		genai.NewPartFromText("Transcribe this voice message verbatim. Reply with the transcript only; reply with an empty string if there is no speech."),
	}, genai.RoleUser)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, nil)
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
