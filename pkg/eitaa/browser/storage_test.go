package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
)

const playwrightState = `{
  "cookies": [
    {"name": "sid", "value": "abc", "domain": ".eitaa.com", "path": "/",
     "expires": 1767225600.5, "httpOnly": true, "secure": true, "sameSite": "Lax"},
    {"name": "tmp", "value": "x", "domain": "web.eitaa.com", "path": "/",
     "expires": -1, "httpOnly": false, "secure": false, "sameSite": "None"}
  ],
  "origins": [
    {"origin": "https://web.eitaa.com",
     "localStorage": [{"name": "user_auth", "value": "{\"dcID\":2}"}]}
  ]
}`

func TestStorageState_ReadsPlaywrightFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(path, []byte(playwrightState), 0o600))

	st, err := readStorageState(path)
	require.NoError(t, err)

	params := st.cookieParams()
	require.Len(t, params, 2)
	assert.Equal(t, "sid", params[0].Name)
	assert.Equal(t, network.CookieSameSiteLax, params[0].SameSite)
	assert.True(t, params[0].HTTPOnly)
	require.NotNil(t, params[0].Expires)
	assert.Equal(t, int64(1767225600), params[0].Expires.Time().Unix())
	assert.Nil(t, params[1].Expires)

	assert.Equal(t,
		[]storageRecord{{Name: "user_auth", Value: `{"dcID":2}`}},
		st.localStorageFor("https://web.eitaa.com/"))
	assert.Nil(t, st.localStorageFor("https://example.com"))
}

func TestStorageState_RoundTrip(t *testing.T) {
	cookies := []*network.Cookie{
		{Name: "sid", Value: "abc", Domain: ".eitaa.com", Path: "/", Expires: 1767225600, HTTPOnly: true, Secure: true, SameSite: network.CookieSameSiteStrict},
		{Name: "tmp", Value: "x", Domain: "web.eitaa.com", Path: "/", Session: true},
	}
	entries := [][]string{{"b", "2"}, {"a", "1"}, {"broken"}}

	path := filepath.Join(t.TempDir(), "nested", "auth.json")
	require.NoError(t, writeStorageState(path, newStorageState(cookies, "https://web.eitaa.com", entries)))

	got, err := readStorageState(path)
	require.NoError(t, err)

	want := &storageState{
		Cookies: []storedCookie{
			{Name: "sid", Value: "abc", Domain: ".eitaa.com", Path: "/", Expires: 1767225600, HTTPOnly: true, Secure: true, SameSite: "Strict"},
			{Name: "tmp", Value: "x", Domain: "web.eitaa.com", Path: "/", Expires: -1},
		},
		Origins: []originState{{
			Origin:       "https://web.eitaa.com",
			LocalStorage: []storageRecord{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("storage state mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStorageState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := readStorageState(path)
	assert.Error(t, err)
}

func TestSetItemsScript_EscapesValues(t *testing.T) {
	script, err := setItemsScript([]storageRecord{{Name: "k", Value: `it's "quoted"`}})
	require.NoError(t, err)
	assert.Contains(t, script, `[["k","it's \"quoted\""]]`)
}

func TestHintRecords_Sorted(t *testing.T) {
	records := hintRecords()
	require.Len(t, records, len(sessionHints))
	for i := 1; i < len(records); i++ {
		assert.Less(t, records[i-1].Name, records[i].Name)
	}
}

func TestBubbleData_ToBubble(t *testing.T) {
	got := bubbleData{MID: " 42 ", Text: "line one\r\nline two", HasText: true, HasMedia: true}.toBubble()
	want := eitaa.Bubble{RawID: "42", Lines: []string{"line one", "line two"}, HasText: true, HasMedia: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toBubble mismatch (-want +got):\n%s", diff)
	}

	empty := bubbleData{MID: "7"}.toBubble()
	assert.Nil(t, empty.Lines)
	assert.False(t, empty.HasText)
}

func TestDownloadName(t *testing.T) {
	assert.Equal(t, "12_photo.jpg", downloadName("12", "photo.jpg"))
	assert.Equal(t, "12_evil.jpg", downloadName("12", "../../evil.jpg"))
	assert.Equal(t, "12_x.png", downloadName("12", `C:\tmp\x.png`))
	assert.Equal(t, "12_attachment", downloadName("12", ""))
}

func TestSelectors(t *testing.T) {
	assert.Equal(t, `li.chatlist-chat[data-peer-id="-1001"]`, channelSelector("-1001"))
	assert.Equal(t, `div.bubble[data-mid="55"] div.media-container`, mediaSelector("55"))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validatePhone("+989121234567"))
	assert.Error(t, validatePhone("09121234567"))
	assert.Error(t, validatePhone("+98912"))

	assert.NoError(t, validateCode("12345"))
	assert.Error(t, validateCode("123"))
	assert.Error(t, validateCode("12a45"))
}

func TestSleep_Zero(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleep(context.Background(), 0))
	assert.Less(t, time.Since(start), time.Second)
}
