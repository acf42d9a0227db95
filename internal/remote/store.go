package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/illarion/vaultx/internal/identity"
	"github.com/illarion/vaultx/internal/storage"
)

const (
	itemsPath    = "/rest/v1/vault_items"
	itemsColumns = "id,user_id,title,encrypted_data,created_at"
)

type itemJSON struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	EncryptedData string    `json:"encrypted_data"`
	CreatedAt     time.Time `json:"created_at"`
}

type itemInsert struct {
	UserID        string `json:"user_id"`
	Title         string `json:"title"`
	EncryptedData string `json:"encrypted_data"`
}

type restErrorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// List returns the signed-in user's records, newest first
func (c *Client) List(ctx context.Context) ([]storage.SealedRecord, error) {
	session, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   itemsPath,
		query: url.Values{
			"select": {itemsColumns},
			"order":  {"created_at.desc"},
		},
		bearer: session.AccessToken,
	})
	if err := restResult("list", status, body, err); err != nil {
		return nil, err
	}

	var items []itemJSON
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, storage.Wrap("list", fmt.Errorf("%w: %v", storage.ErrCorrupt, err))
	}

	records := make([]storage.SealedRecord, len(items))
	for i, it := range items {
		records[i] = storage.SealedRecord{
			ID:         it.ID,
			Title:      it.Title,
			Ciphertext: it.EncryptedData,
			CreatedAt:  it.CreatedAt,
		}
	}
	return records, nil
}

// Insert stores a record owned by the signed-in user
func (c *Client) Insert(ctx context.Context, title, ciphertext string) (string, error) {
	session, err := c.requireSession()
	if err != nil {
		return "", err
	}

	status, body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   itemsPath,
		body: itemInsert{
			UserID:        session.User.ID,
			Title:         title,
			EncryptedData: ciphertext,
		},
		bearer: session.AccessToken,
		prefer: "return=representation",
	})
	if err := restResult("insert", status, body, err); err != nil {
		return "", err
	}

	var created []itemJSON
	if err := json.Unmarshal(body, &created); err != nil || len(created) == 0 || created[0].ID == "" {
		return "", storage.Wrap("insert", errors.New("server returned no inserted row"))
	}
	return created[0].ID, nil
}

// Delete removes a record. The server answers with the deleted rows; none
// means the id did not exist for this user.
func (c *Client) Delete(ctx context.Context, id string) error {
	session, err := c.requireSession()
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   itemsPath,
		query:  url.Values{"id": {"eq." + id}},
		bearer: session.AccessToken,
		prefer: "return=representation",
	})
	if err := restResult("delete", status, body, err); err != nil {
		return err
	}

	var deleted []itemJSON
	if err := json.Unmarshal(body, &deleted); err != nil {
		return storage.Wrap("delete", fmt.Errorf("%w: %v", storage.ErrCorrupt, err))
	}
	if len(deleted) == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// requireSession fails with ErrAuthExpired before any request is sent
// when the token is missing or past its exp claim
func (c *Client) requireSession() (*identity.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.Expired(time.Now()) {
		return nil, storage.ErrAuthExpired
	}
	s := *c.session
	return &s, nil
}

func restResult(op string, status int, body []byte, err error) error {
	if err != nil {
		return storage.Wrap(op, err)
	}
	if success(status) {
		return nil
	}
	if status == http.StatusUnauthorized {
		return storage.ErrAuthExpired
	}

	var e restErrorJSON
	_ = json.Unmarshal(body, &e)
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return storage.Wrap(op, &APIError{Status: status, Code: e.Code, Message: msg})
}
