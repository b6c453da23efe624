package bot

import "github.com/tbourn/go-anon-relay/internal/domain"

// Callback data carried by the inline buttons.
const (
	CallbackGetLink = "get_link"
	CallbackMyLink  = "my_link"
)

const supportedKinds = "• Text 📝\n" +
	"• Photos 📸\n" +
	"• Videos 🎬\n" +
	"• Voice messages 🎤\n" +
	"• Music 🎵\n" +
	"• Documents 📎\n" +
	"• Stickers ✨\n"

const (
	welcomeText = "👋 <b>Anonymous bot</b>\n\n" +
		"📌 <b>How it works:</b>\n" +
		"1. Tap «Get my link»\n" +
		"2. Share the link with friends\n" +
		"3. They can write to you anonymously\n" +
		"4. Receive any message: text, photos, videos, voice and more\n\n" +
		"To send an anonymous message, open someone else's link."

	ownLinkText = "👋 This is your own link!\n" +
		"You can get the link to share it."

	composeText = "✍️ <b>Anonymous message</b>\n\n" +
		"You can send <b>any message</b> to the owner of this link:\n" +
		supportedKinds + "\n" +
		"⚠️ <b>NOTE:</b>\n" +
		"• The message is sent <b>fully anonymously</b>\n" +
		"• The recipient will not find out who you are\n\n" +
		"Just send anything:"

	invalidLinkText   = "❌ This link is invalid or has expired."
	noSessionText     = "❌ Something went wrong. Try opening the link again."
	unsupportedText   = "❌ This message type is not supported yet."
	deliveryFailText  = "❌ Could not deliver the message. The recipient may have blocked the bot."
	genericErrorText  = "❌ Something went wrong, please try again."
	unknownCmdText    = "Unknown command. Use /start to begin."
	noAccessText      = "❌ You do not have access to this command."
	auditFailedText   = "❌ Could not load relay records."
	callbackErrorText = "Something went wrong, try again"
)

var (
	getLinkButton = domain.Button{Text: "🔗 Get my link", Data: CallbackGetLink}
	myLinkButton  = domain.Button{Text: "🔗 My link", Data: CallbackMyLink}
)

func linkIssuedText(url string) string {
	return "🔗 <b>Your anonymous link:</b>\n\n" +
		"<code>" + url + "</code>\n\n" +
		"📢 <b>What can be sent through this link:</b>\n" +
		supportedKinds +
		"• Video notes 📹\n\n" +
		"⚠️ <b>All messages will be anonymous!</b>\n\n" +
		"🔗 <b>Copy and send it to friends:</b>\n" +
		"<code>" + url + "</code>"
}

func myLinkText(url string) string {
	return "🔗 <b>Your link:</b>\n\n" +
		"<code>" + url + "</code>\n\n" +
		"Send this link to friends to receive anonymous messages."
}

var sentTexts = map[domain.ContentKind]string{
	domain.KindText:      "✅ Text sent anonymously!",
	domain.KindPhoto:     "✅ Photo sent anonymously!",
	domain.KindVideo:     "✅ Video sent anonymously!",
	domain.KindVoice:     "✅ Voice message sent anonymously!",
	domain.KindAudio:     "✅ Audio sent anonymously!",
	domain.KindDocument:  "✅ Document sent anonymously!",
	domain.KindSticker:   "✅ Sticker sent anonymously!",
	domain.KindVideoNote: "✅ Video note sent anonymously!",
}
