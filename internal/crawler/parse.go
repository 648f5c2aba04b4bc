package crawler

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	emailverifier "github.com/AfterShip/email-verifier"
	"github.com/Harvey-AU/seo-parser/internal/util"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

var emailVerifier = emailverifier.NewVerifier()

// Parse extracts SEO metadata from an HTML body. baseURL is the URL the body
// was served from and is used to resolve relative links. Missing elements
// leave their fields empty; only bodies that are not text at all fail with
// ErrMalformedDocument.
func Parse(body []byte, baseURL string) (*Document, error) {
	if bytes.IndexByte(body, 0) != -1 || !strings.HasPrefix(http.DetectContentType(body), "text/") {
		return nil, fmt.Errorf("%w: body is binary", ErrMalformedDocument)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base URL %q: %w", ErrMalformedDocument, baseURL, err)
	}

	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(decodeBody(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	// <base href> changes how every relative link resolves
	if href, ok := dom.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	doc := &Document{
		Title:      cleanText(dom.Find("title").First().Text()),
		MetaRobots: metaContent(dom, "name", "robots"),
	}

	doc.Description = metaContent(dom, "name", "description")
	if doc.Description == "" {
		doc.Description = metaContent(dom, "property", "og:description")
	}

	dom.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if text == "" {
			return
		}
		doc.Headers = append(doc.Headers, text)
		if doc.H1 == "" && goquery.NodeName(s) == "h1" {
			doc.H1 = text
		}
	})

	dom.Find("link[rel][href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, rel := range strings.Fields(strings.ToLower(s.AttrOr("rel", ""))) {
			if rel == "canonical" {
				doc.Canonical = resolveRaw(base, s.AttrOr("href", ""))
				return false
			}
		}
		return true
	})

	seenEmails := make(map[string]bool)
	dom.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		lower := strings.ToLower(href)

		switch {
		case href == "" || strings.HasPrefix(href, "#"):
			return
		case strings.HasPrefix(lower, "mailto:"):
			if email := mailtoAddress(href); email != "" && !seenEmails[email] {
				seenEmails[email] = true
				doc.Emails = append(doc.Emails, email)
			}
			return
		case strings.HasPrefix(lower, "javascript:"), strings.HasPrefix(lower, "tel:"):
			return
		}

		if isElementHidden(s) {
			return
		}

		if link := util.ResolveURL(base, href); link != "" {
			doc.Links = append(doc.Links, link)
		}
	})

	return doc, nil
}

// IsHTML reports whether a Content-Type header names an HTML document.
// An empty header is treated as HTML, servers often omit it.
func IsHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// metaContent returns the content of the first <meta> whose attr equals
// value, compared case-insensitively.
func metaContent(dom *goquery.Document, attr, value string) string {
	var content string
	dom.Find("meta[" + attr + "]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr(attr, "")), value) {
			return true
		}
		content = cleanText(s.AttrOr("content", ""))
		return false
	})
	return content
}

// decodeBody returns body as UTF-8. Valid UTF-8 is kept as-is, anything else
// is decoded with the charset the document declares, windows-1252 when it
// declares none.
func decodeBody(body []byte) []byte {
	if utf8.Valid(body) {
		return body
	}

	enc, name, _ := charset.DetermineEncoding(body, "")
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	log.Debug().Str("charset", name).Msg("Decoded non UTF-8 page")
	return decoded
}

// cleanText collapses runs of whitespace, including newlines inside headings.
// The result is always valid UTF-8.
func cleanText(s string) string {
	return strings.ToValidUTF8(strings.Join(strings.Fields(s), " "), "\uFFFD")
}

func resolveRaw(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return strings.TrimSpace(href)
	}
	return base.ResolveReference(ref).String()
}

func mailtoAddress(href string) string {
	addr := href[len("mailto:"):]
	if i := strings.IndexAny(addr, "?#"); i != -1 {
		addr = addr[:i]
	}
	if unescaped, err := url.PathUnescape(addr); err == nil {
		addr = unescaped
	}
	// mailto can list several recipients, keep the first
	addr, _, _ = strings.Cut(addr, ",")
	addr = strings.ToLower(strings.TrimSpace(addr))

	if !emailVerifier.ParseAddress(addr).Valid {
		return ""
	}
	return addr
}

// isElementHidden checks if an element is hidden based on common inline styles,
// accessibility attributes, and conventional CSS classes.
// This is a best-effort check based on raw HTML attributes, as it does not
// evaluate external or internal CSS stylesheets.
func isElementHidden(s *goquery.Selection) bool {
	hidingClasses := []string{
		"hide",
		"hidden",
		"display-none",
		"d-none",
		"invisible",
		"is-hidden",
		"sr-only",
		"visually-hidden",
	}

	for n := s; n.Length() > 0 && !n.Is("body"); n = n.Parent() {
		if _, exists := n.Attr("hidden"); exists {
			return true
		}
		if _, exists := n.Attr("data-hidden"); exists {
			return true
		}
		if val, exists := n.Attr("data-visible"); exists && val == "false" {
			return true
		}
		if ariaHidden, exists := n.Attr("aria-hidden"); exists && ariaHidden == "true" {
			return true
		}
		if style, exists := n.Attr("style"); exists {
			compact := strings.ReplaceAll(strings.ToLower(style), " ", "")
			if strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden") {
				return true
			}
		}
		for _, class := range hidingClasses {
			if n.HasClass(class) {
				return true
			}
		}
	}

	return false
}
