package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/store"
)

// ConvertMessage turns a Bot API message into the pipeline's message
// model. A nil message is an empty position. id is the message's position
// in the source chat, which differs from m.MessageID for forwarded copies.
func ConvertMessage(id int, m *tgbotapi.Message) ingest.Message {
	if m == nil {
		return ingest.Message{ID: id, Empty: true}
	}
	kind, media := mediaOf(m)
	caption := m.Caption
	if caption == "" && kind == "" {
		caption = m.Text
	}
	return ingest.Message{
		ID:        id,
		MediaKind: kind,
		Media:     media,
		Caption:   strings.TrimSpace(caption),
	}
}

// mediaOf returns the media kind of m and, for catalogable kinds, its
// payload. Kinds the catalog does not keep are returned without payload.
func mediaOf(m *tgbotapi.Message) (string, *ingest.Media) {
	switch {
	// Animations also carry a Document; they are GIFs, not files.
	case m.Animation != nil:
		return "animation", nil
	case m.Video != nil:
		v := m.Video
		return store.KindVideo, &ingest.Media{
			FileID: v.FileID, FileName: v.FileName, FileSize: int64(v.FileSize), MimeType: v.MimeType,
		}
	case m.Audio != nil:
		a := m.Audio
		name := a.FileName
		if name == "" {
			name = strings.TrimSpace(strings.Trim(a.Performer+" - "+a.Title, " -"))
		}
		return store.KindAudio, &ingest.Media{
			FileID: a.FileID, FileName: name, FileSize: int64(a.FileSize), MimeType: a.MimeType,
		}
	case m.Document != nil:
		d := m.Document
		return store.KindDocument, &ingest.Media{
			FileID: d.FileID, FileName: d.FileName, FileSize: int64(d.FileSize), MimeType: d.MimeType,
		}
	case len(m.Photo) > 0:
		return "photo", nil
	case m.Sticker != nil:
		return "sticker", nil
	case m.Voice != nil:
		return "voice", nil
	case m.VideoNote != nil:
		return "video_note", nil
	case m.Contact != nil:
		return "contact", nil
	case m.Location != nil:
		return "location", nil
	case m.Poll != nil:
		return "poll", nil
	}
	return "", nil
}
