// Package token manages the bot-protection access token that gates native
// image downloads. The token is a browser cookie the operator extracts by
// hand; this package handles prompting for it, persisting it between runs,
// and recognizing the challenge responses that mean it has expired.
package token

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Token is one access cookie as extracted from a browser session.
type Token struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}

// Store persists a token between runs.
type Store interface {
	// Load returns the stored token, or (nil, nil) when none is stored.
	Load() (*Token, error)

	// Save persists the token.
	Save(t *Token) error

	// Clear removes the stored token.
	Clear() error
}

// Source obtains a token, typically from the operator.
type Source interface {
	// Obtain returns a token to use. A non-nil existing token may be offered
	// back to the operator for reuse.
	Obtain(ctx context.Context, existing *Token) (*Token, error)
}

// StaticSource always returns a fixed token. Used in tests and when the
// token value arrives via flag or environment.
type StaticSource struct {
	Token Token
}

func (s *StaticSource) Obtain(ctx context.Context, existing *Token) (*Token, error) {
	t := s.Token
	return &t, nil
}

// PromptSource obtains a token interactively from the terminal.
type PromptSource struct {
	// CookieName is the cookie the operator must extract.
	CookieName string
	// Domain is recorded on tokens entered by hand.
	Domain string
	// SiteURL is shown in the extraction guide.
	SiteURL string

	// In and Out default to stdin and stdout.
	In  *os.File
	Out *os.File
}

// NewPromptSource creates an interactive token source.
func NewPromptSource(cookieName, domain, siteURL string) *PromptSource {
	return &PromptSource{
		CookieName: cookieName,
		Domain:     domain,
		SiteURL:    siteURL,
		In:         os.Stdin,
		Out:        os.Stdout,
	}
}

// Obtain prompts the operator for a token. When an existing token is offered
// and the session is interactive, the operator may reuse it with a single
// keystroke. In a non-interactive session the existing token is reused
// silently; with no existing token, non-interactive sessions fail.
func (p *PromptSource) Obtain(ctx context.Context, existing *Token) (*Token, error) {
	if !p.interactive() {
		if existing != nil && existing.Value != "" {
			return existing, nil
		}
		return nil, fmt.Errorf("no stored token and no terminal to prompt on; set the token via environment or token file")
	}

	if existing != nil && existing.Value != "" {
		fmt.Fprintf(p.Out, "Found stored token %s (%s)\n", p.CookieName, maskValue(existing.Value))
		ok, err := p.askYesNo("Use existing token? [Y/n] ")
		if err != nil {
			return nil, err
		}
		if ok {
			return existing, nil
		}
	}

	ShowExtractionGuide(p.Out, p.SiteURL, p.CookieName)

	value, err := p.readLine(fmt.Sprintf("Paste the %s cookie value: ", p.CookieName))
	if err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty token value")
	}

	return &Token{Name: p.CookieName, Value: value, Domain: p.Domain}, nil
}

func (p *PromptSource) interactive() bool {
	return term.IsTerminal(int(p.In.Fd()))
}

func (p *PromptSource) askYesNo(prompt string) (bool, error) {
	answer, err := p.readLine(prompt)
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "" || answer == "y" || answer == "yes", nil
}

func (p *PromptSource) readLine(prompt string) (string, error) {
	fmt.Fprint(p.Out, prompt)
	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// maskValue masks all but the first 4 and last 4 characters of a value
func maskValue(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
