package crm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// The user directory lives in a CRM spreadsheet document. One user per row
// starting at row 2; columns are A=company, B=name, C=nickname, D=phone,
// E=role, F=secret, G=blocked.

// Directory column indexes for UpdateCell.
const (
	ColCompany = iota
	ColName
	ColNickname
	ColPhone
	ColRole
	ColSecret
	ColBlocked
)

const (
	directoryMaxRows = 500
	directoryClient  = "shipdesk-bot"
)

// DirectoryUser is one row of the user directory.
type DirectoryUser struct {
	Company  string
	Name     string
	Nickname string
	Phone    string
	Role     string
	Secret   string
	Blocked  string
	Row      int
}

type snapshot struct {
	RevisionID string  `json:"revisionId"`
	Sheets     []sheet `json:"sheets"`
}

type sheet struct {
	Cells map[string]json.RawMessage `json:"cells"`
}

// cellString reads a snapshot cell, which is either a bare string or an
// object with a content field depending on the spreadsheet version.
func cellString(cells map[string]json.RawMessage, ref string) string {
	raw, ok := cells[ref]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Content
	}
	return ""
}

// readSnapshot fetches and decodes the current spreadsheet snapshot.
func (c *Client) readSnapshot(ctx context.Context, spreadsheetID int) (*snapshot, error) {
	var rows []map[string]json.RawMessage
	err := c.executeKw(ctx, "documents.document", "read",
		[]any{[]int{spreadsheetID}, []string{"spreadsheet_snapshot"}}, nil, &rows)
	if err != nil {
		return nil, fmt.Errorf("reading directory document: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("directory document %d not found", spreadsheetID)
	}

	var b64 string
	if raw, ok := rows[0]["spreadsheet_snapshot"]; ok {
		json.Unmarshal(raw, &b64)
	}
	if b64 == "" {
		return nil, fmt.Errorf("directory document %d has no snapshot", spreadsheetID)
	}
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decoding directory snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(decoded, &snap); err != nil {
		return nil, fmt.Errorf("parsing directory snapshot: %w", err)
	}
	return &snap, nil
}

// ReadDirectory returns every user row in the directory. Scanning stops at
// the first row with no company, name, or phone.
func (c *Client) ReadDirectory(ctx context.Context, spreadsheetID int) ([]DirectoryUser, error) {
	snap, err := c.readSnapshot(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	if len(snap.Sheets) == 0 {
		return nil, nil
	}
	cells := snap.Sheets[0].Cells

	var users []DirectoryUser
	for row := 2; row < directoryMaxRows; row++ {
		company := cellString(cells, fmt.Sprintf("A%d", row))
		name := cellString(cells, fmt.Sprintf("B%d", row))
		phone := cellString(cells, fmt.Sprintf("D%d", row))
		if company == "" && name == "" && phone == "" {
			break
		}
		users = append(users, DirectoryUser{
			Company:  company,
			Name:     name,
			Nickname: cellString(cells, fmt.Sprintf("C%d", row)),
			Phone:    phone,
			Role:     cellString(cells, fmt.Sprintf("E%d", row)),
			Secret:   cellString(cells, fmt.Sprintf("F%d", row)),
			Blocked:  cellString(cells, fmt.Sprintf("G%d", row)),
			Row:      row,
		})
	}
	return users, nil
}

// FindUserByPhone matches a sender against the directory, comparing full
// numbers and the last ten digits. Returns nil when nobody matches.
func (c *Client) FindUserByPhone(ctx context.Context, spreadsheetID int, phone string) (*DirectoryUser, error) {
	users, err := c.ReadDirectory(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	clean := cleanPhone(phone)
	for i := range users {
		up := cleanPhone(users[i].Phone)
		if up == "" {
			continue
		}
		if up == clean || lastN(clean, 10) == lastN(up, 10) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// VerificationSecret reads a user's current secret directly from the
// directory, bypassing any cache.
func (c *Client) VerificationSecret(ctx context.Context, spreadsheetID int, phone string) (string, error) {
	user, err := c.FindUserByPhone(ctx, spreadsheetID, phone)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", nil
	}
	return user.Secret, nil
}

// AddUser appends a user row to the directory and returns its row number.
func (c *Client) AddUser(ctx context.Context, spreadsheetID int, u DirectoryUser) (int, error) {
	users, err := c.ReadDirectory(ctx, spreadsheetID)
	if err != nil {
		return 0, err
	}
	row := 2
	for _, existing := range users {
		if existing.Row >= row {
			row = existing.Row + 1
		}
	}

	var commands []map[string]any
	for col, val := range map[int]string{
		ColCompany:  u.Company,
		ColName:     u.Name,
		ColNickname: u.Nickname,
		ColPhone:    u.Phone,
		ColRole:     u.Role,
	} {
		if val == "" {
			continue
		}
		commands = append(commands, updateCellCmd(row, col, val))
	}
	if len(commands) == 0 {
		return 0, fmt.Errorf("directory row has no content")
	}
	if err := c.dispatch(ctx, spreadsheetID, commands); err != nil {
		return 0, err
	}
	c.Log.Info("directory user added", zap.Int("row", row), zap.String("name", u.Name))
	return row, nil
}

// UpdateCell writes one directory cell.
func (c *Client) UpdateCell(ctx context.Context, spreadsheetID, row, col int, value string) error {
	return c.dispatch(ctx, spreadsheetID, []map[string]any{updateCellCmd(row, col, value)})
}

func updateCellCmd(row, col int, content string) map[string]any {
	return map[string]any{
		"type":    "UPDATE_CELL",
		"sheetId": "sheet1",
		"col":     col,
		"row":     row - 1,
		"content": content,
	}
}

// dispatch sends a revision message carrying spreadsheet commands. The
// revision id is re-read first so the command applies against the current
// server state.
func (c *Client) dispatch(ctx context.Context, spreadsheetID int, commands []map[string]any) error {
	snap, err := c.readSnapshot(ctx, spreadsheetID)
	if err != nil {
		return err
	}
	if snap.RevisionID == "" {
		return fmt.Errorf("directory snapshot has no revision id")
	}

	message := map[string]any{
		"type":             "REMOTE_REVISION",
		"nextRevisionId":   uuid.NewString(),
		"serverRevisionId": snap.RevisionID,
		"commands":         commands,
		"clientId":         directoryClient,
	}
	var ok bool
	err = c.executeKw(ctx, "documents.document", "dispatch_spreadsheet_message",
		[]any{[]int{spreadsheetID}, message}, nil, &ok)
	if err != nil {
		return fmt.Errorf("dispatching directory update: %w", err)
	}
	if !ok {
		return fmt.Errorf("directory update was rejected")
	}
	return nil
}

func cleanPhone(phone string) string {
	return strings.NewReplacer("+", "", " ", "", "-", "").Replace(strings.TrimSpace(phone))
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
