package locksy

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/forest6511/locksy/pkg/api"
	"github.com/forest6511/locksy/pkg/audit"
	"github.com/forest6511/locksy/pkg/crypto"
	"github.com/forest6511/locksy/pkg/envelope"
	"github.com/forest6511/locksy/pkg/security"
	"github.com/forest6511/locksy/pkg/session"
	"github.com/forest6511/locksy/pkg/vault"
)

// Entry is a stored password after decryption.
//
// DecryptErr is set when this item alone could not be opened. Password is
// then empty and the rest of the list is unaffected.
type Entry struct {
	ID         string
	Name       string
	Username   string
	Password   string
	DecryptErr error
	// Offline marks entries served from the local mirror.
	Offline bool
}

// Patch changes an entry. Nil fields are left unchanged.
type Patch struct {
	Name     *string
	Username *string
	Password *string
}

// ListPasswords fetches and decrypts every stored password. On a network
// error it falls back to the offline mirror when one is configured.
func (c *Client) ListPasswords(ctx context.Context) ([]Entry, error) {
	entries, err := c.listPasswords(ctx)
	c.record(audit.OpPasswordList, "", err)
	return entries, err
}

func (c *Client) listPasswords(ctx context.Context) ([]Entry, error) {
	items, offline, err := c.fetchItems(ctx)
	if err != nil {
		return nil, err
	}

	email, salt := c.accountState()
	want := envelope.Expectation{
		Email:   email,
		Context: envelope.ContextCreated,
		KDF:     ptr(envelope.KDFFromParams(c.kdf)),
		Salt:    salt,
	}

	entries := make([]Entry, len(items))
	err = c.keys.WithSubKey(crypto.PurposePasswords, func(sub *crypto.KeyMaterial) error {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, item := range items {
			g.Go(func() error {
				entries[i] = Entry{
					ID:       item.ID.String(),
					Name:     item.Name,
					Username: item.Username,
					Offline:  offline,
				}
				pt, err := envelope.OpenSecret(sub, item.Secret, want)
				if err != nil {
					entries[i].DecryptErr = err
					return nil
				}
				entries[i].Password = string(pt)
				crypto.SecureWipe(pt)
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.DecryptErr != nil {
			c.logger.Warn("unable to decrypt entry", slog.String("id", e.ID), slog.Any("error", e.DecryptErr))
		}
	}
	return entries, nil
}

// fetchItems returns the remote list and refreshes the mirror, or the
// mirror's contents when the remote is unreachable.
func (c *Client) fetchItems(ctx context.Context) ([]api.PasswordItem, bool, error) {
	if !c.keys.IsSet() {
		return nil, false, session.ErrNotAuthenticated
	}

	items, err := c.api.ListPasswords(ctx)
	v := c.Vault()
	if err == nil {
		if v != nil {
			if err := v.ReplaceAll(toVaultItems(items)); err != nil {
				c.logger.Warn("failed to update offline mirror", slog.Any("error", err))
			}
		}
		return items, false, nil
	}

	var netErr *api.NetworkError
	if v == nil || !c.offline || !errors.As(err, &netErr) {
		return nil, false, err
	}

	cached, verr := v.List()
	if verr != nil {
		return nil, false, errors.Join(err, verr)
	}
	c.logger.Warn("remote unavailable, using offline mirror", slog.Int("items", len(cached)))
	return fromVaultItems(cached), true, nil
}

// GetPassword returns the entry named name.
func (c *Client) GetPassword(ctx context.Context, name string) (*Entry, error) {
	entry, err := c.getPassword(ctx, name)
	c.record(audit.OpPasswordGet, name, err)
	return entry, err
}

func (c *Client) getPassword(ctx context.Context, name string) (*Entry, error) {
	entries, err := c.listPasswords(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := findByName(entries, name)
	if err != nil {
		return nil, err
	}
	if entry.DecryptErr != nil {
		return nil, entry.DecryptErr
	}
	return entry, nil
}

func findByName(entries []Entry, name string) (*Entry, error) {
	var found *Entry
	for i := range entries {
		if entries[i].Name != name {
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousEntry
		}
		found = &entries[i]
	}
	if found == nil {
		return nil, ErrEntryNotFound
	}
	return found, nil
}

// CreatePassword seals password and stores a new entry.
func (c *Client) CreatePassword(ctx context.Context, name, username, password string) (*Entry, error) {
	entry, err := c.createPassword(ctx, name, username, password)
	c.record(audit.OpPasswordCreate, name, err)
	return entry, err
}

func (c *Client) createPassword(ctx context.Context, name, username, password string) (*Entry, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	secret, err := c.sealSecret(password)
	if err != nil {
		return nil, err
	}

	item, err := c.api.CreatePassword(ctx, &api.PasswordInput{
		Name:     name,
		Username: username,
		Secret:   secret,
	})
	if err != nil {
		return nil, err
	}
	c.mirror(item)

	return &Entry{
		ID:       item.ID.String(),
		Name:     item.Name,
		Username: item.Username,
		Password: password,
	}, nil
}

// UpdatePassword applies patch to entry id. A changed password is sealed
// again under a fresh nonce.
func (c *Client) UpdatePassword(ctx context.Context, id string, patch Patch) error {
	err := c.updatePassword(ctx, id, patch)
	name := id
	if patch.Name != nil {
		name = *patch.Name
	}
	c.record(audit.OpPasswordUpdate, name, err)
	return err
}

func (c *Client) updatePassword(ctx context.Context, id string, patch Patch) error {
	if patch.Name != nil && *patch.Name == "" {
		return ErrEmptyName
	}
	body := &api.PasswordPatch{Name: patch.Name, Username: patch.Username}
	if patch.Password != nil {
		secret, err := c.sealSecret(*patch.Password)
		if err != nil {
			return err
		}
		body.Secret = &secret
	}

	item, err := c.api.UpdatePassword(ctx, api.ItemID(id), body)
	if err != nil {
		return err
	}
	c.mirror(item)
	return nil
}

// DeletePassword removes entry id.
func (c *Client) DeletePassword(ctx context.Context, id string) error {
	err := c.api.DeletePassword(ctx, api.ItemID(id))
	if err == nil {
		if v := c.Vault(); v != nil {
			if verr := v.Delete(id); verr != nil && !errors.Is(verr, vault.ErrItemNotFound) {
				c.logger.Warn("failed to update offline mirror", slog.Any("error", verr))
			}
		}
	}
	c.record(audit.OpPasswordDelete, id, err)
	return err
}

// CheckEntryBreach looks up a stored password and returns only its breach
// count.
func (c *Client) CheckEntryBreach(ctx context.Context, name string) (int, error) {
	n, err := c.checkEntryBreach(ctx, name)
	c.record(audit.OpBreachCheck, name, err)
	return n, err
}

func (c *Client) checkEntryBreach(ctx context.Context, name string) (int, error) {
	entry, err := c.getPassword(ctx, name)
	if err != nil {
		return 0, err
	}
	return c.breach.CheckCount(ctx, entry.Password)
}

// Health grades every stored password. Names appear in the report only
// when includeNames is set.
func (c *Client) Health(ctx context.Context, includeNames bool) (*security.Report, error) {
	entries, err := c.listPasswords(ctx)
	if err != nil {
		return nil, err
	}

	in := make([]security.Entry, len(entries))
	for i, e := range entries {
		in[i] = security.Entry{Name: e.Name, Password: e.Password, Unreadable: e.DecryptErr != nil}
	}

	calc := security.NewCalculator(c.breach.CheckCount)
	defer calc.Close()
	return calc.Analyze(ctx, in, includeNames)
}

// sealSecret seals a stored password under the passwords sub-key.
func (c *Client) sealSecret(password string) (string, error) {
	email, salt := c.accountState()
	if email == "" {
		return "", session.ErrNotAuthenticated
	}

	var secret string
	err := c.keys.WithSubKey(crypto.PurposePasswords, func(sub *crypto.KeyMaterial) error {
		var err error
		secret, err = envelope.SealSecret(sub, salt, c.aad(email, envelope.ContextCreated), []byte(password))
		return err
	})
	return secret, err
}

// mirror writes a server item into the offline mirror.
func (c *Client) mirror(item *api.PasswordItem) {
	v := c.Vault()
	if v == nil || item == nil || item.ID == "" || item.Name == "" {
		return
	}
	if err := v.Upsert(toVaultItem(*item)); err != nil {
		c.logger.Warn("failed to update offline mirror", slog.Any("error", err))
	}
}

func toVaultItem(item api.PasswordItem) vault.Item {
	return vault.Item{
		ID:       item.ID.String(),
		Name:     item.Name,
		Username: item.Username,
		Secret:   item.Secret,
	}
}

func toVaultItems(items []api.PasswordItem) []vault.Item {
	out := make([]vault.Item, 0, len(items))
	for _, item := range items {
		out = append(out, toVaultItem(item))
	}
	return out
}

func fromVaultItems(items []vault.Item) []api.PasswordItem {
	out := make([]api.PasswordItem, 0, len(items))
	for _, item := range items {
		out = append(out, api.PasswordItem{
			ID:       api.ItemID(item.ID),
			Name:     item.Name,
			Username: item.Username,
			Secret:   item.Secret,
		})
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
