package campaign

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/osteele/liquid"
)

// renderer personalizes subject and body with liquid variables
// ({{ first_name }}, {{ last_name }}, {{ email }}). Parsed templates are
// cached per source string since one campaign renders once per recipient.
type renderer struct {
	engine *liquid.Engine
	cache  sync.Map // source -> *liquid.Template
}

func newRenderer() *renderer {
	return &renderer{engine: liquid.NewEngine()}
}

func (r *renderer) render(source string, c *domain.Contact) string {
	tpl, err := r.template(source)
	if err != nil {
		// A broken template falls back to the literal text; a typo must
		// not fail the whole campaign.
		return source
	}
	out, err := tpl.RenderString(map[string]any{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"email":      c.Email,
	})
	if err != nil {
		logger.Warn("template render failed", "contact_id", c.ID, "err", err)
		return source
	}
	return out
}

func (r *renderer) template(source string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(source); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(source)
	if err != nil {
		return nil, err
	}
	r.cache.Store(source, tpl)
	return tpl, nil
}

// buildHTML wraps the rendered content in a minimal document if needed
// and injects the tracking pixel and the unsubscribe footer before the
// closing body tag.
func buildHTML(body, baseURL, councillorID, campaignID string, c *domain.Contact) string {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(body)), "<html") {
		body = "<html><body>" + body + "</body></html>"
	}

	pixel := fmt.Sprintf(
		`<img alt="" width="1" height="1" style="display:none;" src="%s/track/pixel?councillorId=%s&campaignId=%s&contactId=%s" />`,
		baseURL, url.QueryEscape(councillorID), url.QueryEscape(campaignID), url.QueryEscape(c.ID))

	unsub := fmt.Sprintf(
		`<p style="margin-top:16px;font-size:12px;color:#666;">If you no longer wish to receive these emails, <a href="%s/unsubscribe?email=%s&councillorId=%s&campaignId=%s&contactId=%s">unsubscribe here</a>.</p>`,
		baseURL, url.QueryEscape(c.Email), url.QueryEscape(councillorID),
		url.QueryEscape(campaignID), url.QueryEscape(c.ID))

	footer := pixel + unsub
	if i := strings.LastIndex(strings.ToLower(body), "</body>"); i >= 0 {
		return body[:i] + footer + body[i:]
	}
	return body + footer
}

var (
	brTags    = regexp.MustCompile(`(?i)<br\s*/?>`)
	pClose    = regexp.MustCompile(`(?i)</p>`)
	anyTag    = regexp.MustCompile(`<[^>]+>`)
	multiLine = regexp.MustCompile(`\n{3,}`)
)

// plainText derives a text/plain alternative from the HTML body for
// clients that refuse HTML.
func plainText(html string) string {
	txt := brTags.ReplaceAllString(html, "\n")
	txt = pClose.ReplaceAllString(txt, "\n\n")
	txt = anyTag.ReplaceAllString(txt, "")
	return strings.TrimSpace(multiLine.ReplaceAllString(txt, "\n\n"))
}
