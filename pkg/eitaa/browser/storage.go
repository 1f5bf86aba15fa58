package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/smaghili/eitaa-forwarder/pkg/atomicfile"
	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
)

// storageState is the on-disk session artifact: cookies plus localStorage
// per origin. The layout matches the storage state files written by
// Playwright, so existing session files keep working.
type storageState struct {
	Cookies []storedCookie `json:"cookies"`
	Origins []originState  `json:"origins"`
}

type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

type originState struct {
	Origin       string          `json:"origin"`
	LocalStorage []storageRecord `json:"localStorage"`
}

type storageRecord struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func readStorageState(path string) (*storageState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var st storageState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &st, nil
}

func writeStorageState(path string, st *storageState) error {
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return atomicfile.WriteFile(path, raw, 0o600)
}

// cookieParams converts stored cookies to CDP parameters. Session cookies
// carry a non-positive expiry and are sent without one.
func (st *storageState) cookieParams() []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(st.Cookies))
	for _, c := range st.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			sec := int64(c.Expires)
			nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
			exp := cdp.TimeSinceEpoch(time.Unix(sec, nsec))
			p.Expires = &exp
		}
		out = append(out, p)
	}
	return out
}

// localStorageFor returns the stored records of origin
func (st *storageState) localStorageFor(origin string) []storageRecord {
	origin = strings.TrimSuffix(origin, "/")
	for _, o := range st.Origins {
		if strings.TrimSuffix(o.Origin, "/") == origin {
			return o.LocalStorage
		}
	}
	return nil
}

func newStorageState(cookies []*network.Cookie, origin string, entries [][]string) *storageState {
	st := &storageState{
		Cookies: make([]storedCookie, 0, len(cookies)),
		Origins: []originState{},
	}
	for _, c := range cookies {
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		st.Cookies = append(st.Cookies, storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}

	if origin != "" {
		records := make([]storageRecord, 0, len(entries))
		for _, e := range entries {
			if len(e) != 2 {
				continue
			}
			records = append(records, storageRecord{Name: e[0], Value: e[1]})
		}
		sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
		st.Origins = append(st.Origins, originState{Origin: origin, LocalStorage: records})
	}
	return st
}

// setItemsScript builds a script writing records into localStorage
func setItemsScript(records []storageRecord) (string, error) {
	pairs := make([][2]string, 0, len(records))
	for _, r := range records {
		pairs = append(pairs, [2]string{r.Name, r.Value})
	}
	raw, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(items => { for (const [k, v] of items) localStorage.setItem(k, v); return items.length; })(%s)`, raw), nil
}

func hintRecords() []storageRecord {
	out := make([]storageRecord, 0, len(sessionHints))
	for k, v := range sessionHints {
		out = append(out, storageRecord{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type bubbleData struct {
	MID      string `json:"mid"`
	Text     string `json:"text"`
	HasText  bool   `json:"hasText"`
	HasMedia bool   `json:"hasMedia"`
}

func (b bubbleData) toBubble() eitaa.Bubble {
	text := strings.ReplaceAll(b.Text, "\r\n", "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	return eitaa.Bubble{
		RawID:    strings.TrimSpace(b.MID),
		Lines:    lines,
		HasText:  b.HasText,
		HasMedia: b.HasMedia,
	}
}

// downloadName builds the final file name of a downloaded attachment
func downloadName(messageID, suggested string) string {
	base := filepath.Base(strings.ReplaceAll(suggested, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "attachment"
	}
	return messageID + "_" + base
}
