package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/model"
)

// Sidecar clients. Each capability is a small HTTP service; the core posts
// JSON and reads a JSON reply. The rotator and code fetcher get generous
// per-call deadlines from the caller's context on top of the transport
// timeout here.

const sidecarConnectTimeout = 10 * time.Second

func newSidecarClient(overall time.Duration) *http.Client {
	return &http.Client{
		Timeout: overall,
		Transport: &http.Transport{
			ResponseHeaderTimeout: overall,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sidecar returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HTTPNotifier forwards messages to the marketplace chat relay.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{
		url:    url,
		client: newSidecarClient(sidecarConnectTimeout),
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, recipient, message string) error {
	payload := map[string]string{
		"recipient": recipient,
		"message":   message,
	}
	if err := postJSON(ctx, n.client, n.url, payload, nil); err != nil {
		return fmt.Errorf("notify %s: %w", recipient, err)
	}
	return nil
}

// HTTPRotator drives the browser-automation sidecar that performs the
// provider login and password change.
type HTTPRotator struct {
	url    string
	client *http.Client
}

func NewHTTPRotator(url string, timeout time.Duration) *HTTPRotator {
	return &HTTPRotator{
		url:    url,
		client: newSidecarClient(timeout),
	}
}

type rotateRequest struct {
	Login           string  `json:"login"`
	Password        string  `json:"password"`
	NewPassword     string  `json:"newPassword"`
	MailboxLogin    *string `json:"mailboxLogin,omitempty"`
	MailboxPassword *string `json:"mailboxPassword,omitempty"`
	IMAPHost        *string `json:"imapHost,omitempty"`
}

func (r *HTTPRotator) Rotate(ctx context.Context, account *model.Account, newPassword string) error {
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	err := postJSON(ctx, r.client, r.url, rotateRequest{
		Login:           account.Login,
		Password:        account.Password,
		NewPassword:     newPassword,
		MailboxLogin:    account.MailboxLogin,
		MailboxPassword: account.MailboxPassword,
		IMAPHost:        account.IMAPHost,
	}, &result)
	if err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("rotation rejected: %s", result.Error)
	}
	return nil
}

// HTTPGuardFetcher asks the mailbox sidecar for the most recent one-time
// verification code. Accounts without mailbox configuration short-circuit
// to no code, no error.
type HTTPGuardFetcher struct {
	url    string
	client *http.Client
}

func NewHTTPGuardFetcher(url string, timeout time.Duration) *HTTPGuardFetcher {
	return &HTTPGuardFetcher{
		url:    url,
		client: newSidecarClient(timeout),
	}
}

func (f *HTTPGuardFetcher) FetchCode(ctx context.Context, account *model.Account, mode CodeMode) (string, error) {
	if !account.HasMailbox() {
		return "", nil
	}

	var result struct {
		Code string `json:"code"`
	}
	err := postJSON(ctx, f.client, f.url, map[string]any{
		"mailboxLogin":    account.MailboxLogin,
		"mailboxPassword": account.MailboxPassword,
		"imapHost":        account.IMAPHost,
		"mode":            string(mode),
	}, &result)
	if err != nil {
		log.Warn().Err(err).Str("account_id", account.ID).Msg("guard code fetch failed")
		return "", err
	}
	return result.Code, nil
}
