package domain

// ContentKind enumerates the payload kinds the relay forwards.
type ContentKind string

const (
	KindText      ContentKind = "text"
	KindPhoto     ContentKind = "photo"
	KindVideo     ContentKind = "video"
	KindVoice     ContentKind = "voice"
	KindAudio     ContentKind = "audio"
	KindDocument  ContentKind = "document"
	KindSticker   ContentKind = "sticker"
	KindVideoNote ContentKind = "video_note"
)

// ContentKinds lists every supported kind in classification precedence.
var ContentKinds = []ContentKind{
	KindText, KindPhoto, KindVideo, KindVoice,
	KindAudio, KindDocument, KindSticker, KindVideoNote,
}

// Valid reports whether k is one of the supported kinds.
func (k ContentKind) Valid() bool {
	for _, c := range ContentKinds {
		if c == k {
			return true
		}
	}
	return false
}

// Content is a classified inbound payload. The concrete types below are the
// only implementations; callers dispatch on them with a type switch.
type Content interface {
	Kind() ContentKind
}

// Text is a plain text message.
type Text struct {
	Body string
}

// Photo references the largest available rendition of a picture.
type Photo struct {
	FileID   string
	FileSize int64
	Caption  string
}

// Video is a regular video file.
type Video struct {
	FileID   string
	FileSize int64
	Duration int
	Caption  string
}

// Voice is a recorded voice message.
type Voice struct {
	FileID   string
	FileSize int64
	Duration int
	Caption  string
}

// Audio is a music track.
type Audio struct {
	FileID    string
	FileSize  int64
	Duration  int
	Title     string
	Performer string
	Caption   string
}

// Document is an arbitrary file.
type Document struct {
	FileID   string
	FileSize int64
	FileName string
	Caption  string
}

// Sticker is a sticker from a sticker set.
type Sticker struct {
	FileID  string
	Emoji   string
	SetName string
}

// VideoNote is a round video message.
type VideoNote struct {
	FileID   string
	Duration int
	Length   int
}

func (Text) Kind() ContentKind      { return KindText }
func (Photo) Kind() ContentKind     { return KindPhoto }
func (Video) Kind() ContentKind     { return KindVideo }
func (Voice) Kind() ContentKind     { return KindVoice }
func (Audio) Kind() ContentKind     { return KindAudio }
func (Document) Kind() ContentKind  { return KindDocument }
func (Sticker) Kind() ContentKind   { return KindSticker }
func (VideoNote) Kind() ContentKind { return KindVideoNote }

// Incoming is a non-command message as received from the platform, before
// classification. Exactly one field is normally set; when several are, the
// first in ContentKinds order wins.
type Incoming struct {
	Text      string
	Photo     *Photo
	Video     *Video
	Voice     *Voice
	Audio     *Audio
	Document  *Document
	Sticker   *Sticker
	VideoNote *VideoNote
}
