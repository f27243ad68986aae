// Package telegram is the concrete delivery client for the Telegram Bot API.
//
// It is send-only: the engine never polls for updates. All sends share one
// rate limiter so that a burst of tasks cannot trip provider limits.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

type Config struct {
	Token      string
	RatePerSec int           // global send rate limit (default 10)
	Timeout    time.Duration // per-call HTTP timeout (default 30s)
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: false,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// chatRef lets a raw chat id string ("-1001234", "@channel") act as a
// telebot recipient without resolving it first.
type chatRef string

func (c chatRef) Recipient() string { return string(c) }

func (a *Adapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *Adapter) SendText(ctx context.Context, recipient, text string) (int64, error) {
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	msg, err := a.bot.Send(chatRef(recipient), text, tele.ModeHTML)
	if err != nil {
		return 0, err
	}
	return int64(msg.ID), nil
}

func (a *Adapter) SendMedia(ctx context.Context, recipient string, att task.Attachment, caption string) (int64, error) {
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	media, err := inputFor(att, caption)
	if err != nil {
		return 0, err
	}
	msg, err := a.bot.Send(chatRef(recipient), media, tele.ModeHTML)
	if err != nil {
		return 0, err
	}
	return int64(msg.ID), nil
}

// SendAlbum sends grouped attachments as one media-group call. Telegram only
// renders a caption on the first album item, so that is where it goes.
func (a *Adapter) SendAlbum(ctx context.Context, recipient string, atts []task.Attachment, caption string) (int64, error) {
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	album := make(tele.Album, 0, len(atts))
	for i, att := range atts {
		cap := ""
		if i == 0 {
			cap = caption
		}
		media, err := inputFor(att, cap)
		if err != nil {
			return 0, err
		}
		album = append(album, media)
	}
	msgs, err := a.bot.SendAlbum(chatRef(recipient), album, tele.ModeHTML)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, errors.New("telegram returned an empty album response")
	}
	return int64(msgs[0].ID), nil
}

func (a *Adapter) SendPoll(ctx context.Context, recipient string, p task.Poll) (int64, error) {
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	poll := &tele.Poll{
		Type:          tele.PollQuiz,
		Question:      p.Question,
		CorrectOption: p.CorrectOption,
		Explanation:   p.Explanation,
		Anonymous:     true,
	}
	poll.AddOptions(p.Options...)
	msg, err := a.bot.Send(chatRef(recipient), poll)
	if err != nil {
		return 0, err
	}
	return int64(msg.ID), nil
}

func (a *Adapter) Delete(ctx context.Context, recipient string, messageID int64) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return errors.New("cannot delete: recipient is not a numeric chat id")
	}
	return a.bot.Delete(tele.StoredMessage{
		ChatID:    chatID,
		MessageID: strconv.FormatInt(messageID, 10),
	})
}

func inputFor(att task.Attachment, caption string) (tele.Inputtable, error) {
	file := tele.FromDisk(att.Path)
	switch task.NormalizeAttachment(att).Kind {
	case task.MediaPhoto:
		return &tele.Photo{File: file, Caption: caption}, nil
	case task.MediaVideo:
		return &tele.Video{File: file, Caption: caption}, nil
	case task.MediaDocument:
		return &tele.Document{File: file, Caption: caption}, nil
	default:
		return nil, errors.New("unknown media kind: " + string(att.Kind))
	}
}
