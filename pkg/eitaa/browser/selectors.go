package browser

import (
	"fmt"
	"strconv"
)

// DOM landmarks of the Eitaa web client
const (
	selChatList     = ".chatlist-container"
	selMainSidebar  = ".tabs-tab.chatlist-container.sidebar.sidebar-left.main-column"
	selLoginPage    = ".tabs-tab.page-sign.active"
	selDownloadBtn  = ".btn-icon.tgico-download"
	selPhoneInput   = `.input-field-input[data-left-pattern=" ‒‒‒ ‒‒‒ ‒‒‒‒"]`
	selPhoneSubmit  = "button.btn-primary span.i18n"
	selCodeInput    = `input[type="tel"].input-field-input`
	selPasswordIn   = `input[type="password"].input-field-input`
	selPasswordSend = "button.btn-primary"
)

// Keys written to localStorage so the web client keeps the login alive
var sessionHints = map[string]string{
	"sessionDuration": "31536000000",
	"keepLoggedIn":    "true",
	"rememberMe":      "true",
	"persistSession":  "true",
}

func channelSelector(channelID string) string {
	return fmt.Sprintf("li.chatlist-chat[data-peer-id=%s]", strconv.Quote(channelID))
}

func mediaSelector(messageID string) string {
	return fmt.Sprintf("div.bubble[data-mid=%s] div.media-container", strconv.Quote(messageID))
}

// bubblesScript returns every rendered message bubble as plain data
const bubblesScript = `Array.from(document.querySelectorAll('div.bubble')).map(b => {
	const m = b.querySelector('div.message');
	return {
		mid: b.getAttribute('data-mid') || '',
		text: m ? m.innerText : '',
		hasText: !!m,
		hasMedia: !!b.querySelector('div.media-container'),
	};
})`

const (
	originScript       = `location.origin`
	localStorageScript = `Object.entries(localStorage)`
)
