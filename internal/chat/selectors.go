// internal/chat/selectors.go
package chat

// DOM anchors of the upstream chat application. The composer id and the
// data-* attributes have survived several UI redesigns; the button
// selectors ride on aria-labels, which change with product copy and are the
// first thing to check when a cycle starts failing.
const (
	// ComposerSelector matches the contenteditable prompt surface. Exported
	// so the session layer can use composer presence as its readiness check.
	ComposerSelector = `#prompt-textarea[contenteditable="true"]`

	sendButtonSelector = `button[aria-label="Send prompt"]`
	stopButtonSelector = `button[aria-label="Stop generating"], button[aria-label="Stop streaming"]`

	tempChatOnSelector  = `button[aria-label="Turn on temporary chat"]`
	tempChatOffSelector = `button[aria-label="Turn off temporary chat"]`
	tempChatAnySelector = tempChatOnSelector + ", " + tempChatOffSelector

	conversationTurnSelector  = `article[data-testid^="conversation-turn-"]`
	assistantRoleSelector     = `div[data-message-author-role="assistant"]`
	userRoleSelector          = `div[data-message-author-role="user"]`
	anyRoleSelector           = assistantRoleSelector + ", " + userRoleSelector
	conversationReadySelector = conversationTurnSelector + ", " + anyRoleSelector

	fileInputSelector = `input[type="file"]`
)

// assistantProbe is the page-side snapshot of the newest assistant message.
type assistantProbe struct {
	Count int    `json:"count"`
	ID    string `json:"id"`
	Text  string `json:"text"`
}

// assistantProbeJS reads the last assistant message container. textContent,
// not innerText: the reply must be captured even while the container is
// scrolled out of view or mid-layout.
const assistantProbeJS = `
(() => {
  const nodes = document.querySelectorAll('` + assistantRoleSelector + `');
  if (!nodes.length) {
    return { count: 0, id: "", text: "" };
  }
  const last = nodes[nodes.length - 1];
  return {
    count: nodes.length,
    id: last.getAttribute('data-message-id') || "",
    text: (last.textContent || "").trim(),
  };
})()
`

// sendEnabledJS reports whether the send control exists and accepts a click.
const sendEnabledJS = `
(() => {
  const button = document.querySelector('` + sendButtonSelector + `');
  return !!button && !button.disabled;
})()
`

// stopVisibleJS reports whether a generation-in-progress control is present.
const stopVisibleJS = `
(() => document.querySelector('` + stopButtonSelector + `') !== null)()
`

// errorBannerJS returns the text of the upstream error toast, or empty when
// none is shown. The application announces failures through a role="alert"
// region.
const errorBannerJS = `
(() => {
  const banner = document.querySelector('div[role="alert"]');
  return banner ? (banner.textContent || "").trim() : "";
})()
`

// attachmentCountJS counts acknowledged attachment previews inside the
// composer form.
const attachmentCountJS = `
(() => {
  const form = document.querySelector('form');
  if (!form) {
    return 0;
  }
  return form.querySelectorAll('img[alt], [data-testid*="attachment"]').length;
})()
`
