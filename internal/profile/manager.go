package profile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hybridz/shipdesk-whatsapp/internal/crm"
)

// Directory is the slice of the CRM client the manager needs.
type Directory interface {
	FindUserByPhone(ctx context.Context, spreadsheetID int, phone string) (*crm.DirectoryUser, error)
	VerificationSecret(ctx context.Context, spreadsheetID int, phone string) (string, error)
	AddUser(ctx context.Context, spreadsheetID int, u crm.DirectoryUser) (int, error)
	UpdateCell(ctx context.Context, spreadsheetID, row, col int, value string) error
}

// Mirror persists profiles locally so a restart does not lose them.
type Mirror interface {
	GetUser(phone string) (*Context, error)
	SaveUser(u *Context) error
	DeleteUser(phone string) error
}

// Manager resolves sender profiles, consulting the directory when the cache
// goes stale and falling back to the local mirror when the CRM is down.
type Manager struct {
	Cache *Cache

	dir     Directory
	mirror  Mirror
	sheetID int
	log     *zap.Logger
}

func NewManager(dir Directory, mirror Mirror, sheetID int, recheck time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		Cache:   NewCache(recheck),
		dir:     dir,
		mirror:  mirror,
		sheetID: sheetID,
		log:     log,
	}
}

func fromDirectory(phone string, row *crm.DirectoryUser) *Context {
	return &Context{
		Phone:    phone,
		Company:  row.Company,
		Name:     row.Name,
		Nickname: row.Nickname,
		Role:     NormalizeRole(row.Role),
		Row:      row.Row,
		Blocked:  row.Blocked != "",
	}
}

// Resolve returns the best available profile for a sender. Never returns
// nil: an unknown sender yields an empty profile with just the phone set.
func (m *Manager) Resolve(ctx context.Context, phone string) *Context {
	cached := m.Cache.Get(phone)
	if cached != nil && !m.Cache.NeedsRecheck(phone) {
		return cached
	}

	if m.dir != nil {
		row, err := m.dir.FindUserByPhone(ctx, m.sheetID, phone)
		switch {
		case err != nil:
			m.log.Warn("directory lookup failed", zap.String("phone", phone), zap.Error(err))
		case row != nil:
			user := fromDirectory(phone, row)
			m.Cache.Put(user)
			if m.mirror != nil {
				if err := m.mirror.SaveUser(user); err != nil {
					m.log.Warn("profile mirror write failed", zap.Error(err))
				}
			}
			return user
		default:
			// A confirmed miss revokes whatever we held locally: a sender
			// deleted from the directory stops being known. Remember we
			// looked so every message does not re-read the sheet.
			m.Cache.Remove(phone)
			if m.mirror != nil {
				if err := m.mirror.DeleteUser(phone); err != nil {
					m.log.Warn("profile mirror delete failed", zap.Error(err))
				}
			}
			m.Cache.MarkChecked(phone)
			return &Context{Phone: phone}
		}
	}

	if cached != nil {
		return cached
	}
	if m.mirror != nil {
		if stored, err := m.mirror.GetUser(phone); err == nil && stored != nil {
			m.Cache.Put(stored)
			return stored
		}
	}
	return &Context{Phone: phone}
}

// Register files a brand-new sender in the directory and locally. The
// directory write is best effort; the local record is authoritative for the
// session either way.
func (m *Manager) Register(ctx context.Context, phone, company, name, nickname string) (*Context, error) {
	if name == "" && company == "" {
		return nil, fmt.Errorf("registration needs a name or company")
	}
	user := &Context{
		Phone:    phone,
		Company:  company,
		Name:     name,
		Nickname: nickname,
		Role:     RoleClient,
	}
	if m.dir != nil {
		row, err := m.dir.AddUser(ctx, m.sheetID, crm.DirectoryUser{
			Company:  company,
			Name:     name,
			Nickname: nickname,
			Phone:    phone,
			Role:     "cliente",
		})
		if err != nil {
			m.log.Warn("directory registration failed", zap.String("phone", phone), zap.Error(err))
		} else {
			user.Row = row
		}
	}
	m.Cache.Put(user)
	if m.mirror != nil {
		if err := m.mirror.SaveUser(user); err != nil {
			m.log.Warn("profile mirror write failed", zap.Error(err))
		}
	}
	return user, nil
}

// SetNickname updates how the sender wants to be addressed, everywhere the
// profile lives.
func (m *Manager) SetNickname(ctx context.Context, phone, nickname string) error {
	user := m.Resolve(ctx, phone)
	user.Nickname = nickname
	m.Cache.Put(user)
	if m.mirror != nil {
		if err := m.mirror.SaveUser(user); err != nil {
			m.log.Warn("profile mirror write failed", zap.Error(err))
		}
	}
	if m.dir != nil && user.Row > 0 {
		if err := m.dir.UpdateCell(ctx, m.sheetID, user.Row, crm.ColNickname, nickname); err != nil {
			return fmt.Errorf("updating directory nickname: %w", err)
		}
	}
	return nil
}

// SetRole changes the sender's role, writing through to the directory when
// we know their row. The directory keeps roles in Spanish.
func (m *Manager) SetRole(ctx context.Context, phone, role string) error {
	user := m.Resolve(ctx, phone)
	user.Role = NormalizeRole(role)
	m.Cache.Put(user)
	if m.mirror != nil {
		if err := m.mirror.SaveUser(user); err != nil {
			m.log.Warn("profile mirror write failed", zap.Error(err))
		}
	}
	if m.dir != nil && user.Row > 0 {
		cell := "cliente"
		if user.Role == RoleEmployee {
			cell = "empleado"
		}
		if err := m.dir.UpdateCell(ctx, m.sheetID, user.Row, crm.ColRole, cell); err != nil {
			return fmt.Errorf("updating directory role: %w", err)
		}
	}
	return nil
}

// Verification state passthroughs, so callers only hold the manager.

func (m *Manager) IsPending(phone string) bool {
	return m.Cache.IsPending(phone)
}

func (m *Manager) SetPending(phone string) {
	m.Cache.SetPending(phone)
}

func (m *Manager) ClearPending(phone string) {
	m.Cache.ClearPending(phone)
}

func (m *Manager) ValidatedToday(phone string) bool {
	return m.Cache.ValidatedToday(phone)
}

func (m *Manager) MarkValidated(phone string) {
	m.Cache.MarkValidated(phone)
}

// Secret fetches the sender's verification secret fresh from the directory.
func (m *Manager) Secret(ctx context.Context, phone string) (string, error) {
	if m.dir == nil {
		return "", fmt.Errorf("directory is not configured")
	}
	return m.dir.VerificationSecret(ctx, m.sheetID, phone)
}
