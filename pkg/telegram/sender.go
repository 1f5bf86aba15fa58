package telegram

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

const (
	maxTextRunes    = 4096
	maxCaptionRunes = 1024
	// zeroChannelID is the TDLib offset for channel and supergroup ids
	zeroChannelID int64 = -1000000000000
)

var photoExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// sender resolves TDLib style peer ids from the account's dialogs and
// sends messages to them
type sender struct {
	api    *tg.Client
	msg    *message.Sender
	up     *uploader.Uploader
	logger *zap.Logger

	mu    sync.Mutex
	peers map[int64]tg.InputPeerClass
}

func newSender(api *tg.Client, logger *zap.Logger) *sender {
	up := uploader.NewUploader(api)
	return &sender{
		api:    api,
		msg:    message.NewSender(api).WithUploader(up),
		up:     up,
		logger: logger,
		peers:  make(map[int64]tg.InputPeerClass),
	}
}

// SendText posts text, split into several messages when it is too long
func (s *sender) SendText(ctx context.Context, target int64, text string) error {
	peer, err := s.resolve(ctx, target)
	if err != nil {
		return err
	}
	for _, part := range splitRunes(text, maxTextRunes) {
		if _, err := s.msg.To(peer).Text(ctx, part); err != nil {
			return fmt.Errorf("send text to %d: %w", target, err)
		}
	}
	return nil
}

// SendFile uploads path and posts it with caption. Captions over the
// platform limit are sent as a follow-up text message.
func (s *sender) SendFile(ctx context.Context, target int64, path, caption string) error {
	peer, err := s.resolve(ctx, target)
	if err != nil {
		return err
	}

	file, err := s.up.FromPath(ctx, path)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}

	inline := caption
	overflow := ""
	if len([]rune(caption)) > maxCaptionRunes {
		inline, overflow = "", caption
	}

	var media message.MediaOption
	ext := strings.ToLower(filepath.Ext(path))
	if photoExt[ext] {
		media = message.UploadedPhoto(file, styling.Plain(inline))
	} else {
		doc := message.UploadedDocument(file, styling.Plain(inline)).Filename(filepath.Base(path))
		if mt := mime.TypeByExtension(ext); mt != "" {
			doc = doc.MIME(mt)
		}
		media = doc
	}

	if _, err := s.msg.To(peer).Media(ctx, media); err != nil {
		return fmt.Errorf("send file to %d: %w", target, err)
	}
	if overflow != "" {
		return s.SendText(ctx, target, overflow)
	}
	return nil
}

func (s *sender) resolve(ctx context.Context, target int64) (tg.InputPeerClass, error) {
	if p, ok := s.cached(target); ok {
		return p, nil
	}
	if err := s.loadDialogs(ctx); err != nil {
		return nil, fmt.Errorf("resolve peer %d: %w", target, err)
	}
	if p, ok := s.cached(target); ok {
		return p, nil
	}
	return nil, fmt.Errorf("peer %d not found in account dialogs", target)
}

func (s *sender) cached(id int64) (tg.InputPeerClass, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[id]
	return p, ok
}

// loadDialogs caches an input peer for every dialog of the account
func (s *sender) loadDialogs(ctx context.Context) error {
	found := make(map[int64]tg.InputPeerClass)
	err := query.GetDialogs(s.api).BatchSize(100).ForEach(ctx, func(ctx context.Context, elem dialogs.Elem) error {
		if id, ok := peerID(elem.Peer); ok {
			found[id] = elem.Peer
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load dialogs: %w", err)
	}

	s.mu.Lock()
	for id, p := range found {
		s.peers[id] = p
	}
	total := len(s.peers)
	s.mu.Unlock()

	s.logger.Debug("Dialogs loaded", zap.Int("peers", total))
	return nil
}

// peerID converts an input peer to its TDLib style numeric id
func peerID(p tg.InputPeerClass) (int64, bool) {
	switch v := p.(type) {
	case *tg.InputPeerUser:
		return v.UserID, true
	case *tg.InputPeerChat:
		return -v.ChatID, true
	case *tg.InputPeerChannel:
		return zeroChannelID - v.ChannelID, true
	default:
		return 0, false
	}
}

// splitRunes cuts s into pieces of at most n runes, preferring line breaks
func splitRunes(s string, n int) []string {
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}

	var parts []string
	for len(r) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		parts = append(parts, string(r))
	}
	return parts
}
