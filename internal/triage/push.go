package triage

import (
	"io"
	"log"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/karnali/wildguard-go/internal/errors"
)

// PushSender delivers supplementary push notifications to operator services.
type PushSender interface {
	Push(title, message string) error
}

// ShoutrrrPush sends through a shoutrrr service router, one sender covering
// all configured URLs.
type ShoutrrrPush struct {
	sender *router.ServiceRouter
}

// NewShoutrrrPush builds the sender for urls, validating them up front.
func NewShoutrrrPush(urls []string) (*ShoutrrrPush, error) {
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.New(err).
			Component("triage").
			Category(errors.CategoryConfiguration).
			Context("channel", "push").
			Build()
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrPush{sender: sender}, nil
}

// Push sends message to every configured service. The first failure is
// returned after all services were attempted.
func (p *ShoutrrrPush) Push(title, message string) error {
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	errs := p.sender.Send(message, &params)
	for _, err := range errs {
		if err != nil {
			return errors.New(err).
				Component("triage").
				Category(errors.CategoryAlertDispatch).
				Context("channel", "push").
				Build()
		}
	}
	return nil
}
