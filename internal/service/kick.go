package service

import (
	"github.com/nanoim/botcore/internal/auth"
	"github.com/nanoim/botcore/internal/errs"
	"github.com/nanoim/botcore/internal/packet"
	"github.com/nanoim/botcore/internal/proto"
)

// KickRequest exists only to give the push entry a request identity; the
// server initiates this exchange.
type KickRequest struct{}

// KickEvent is the forced-offline notice. After it arrives the session is
// dead and tickets must be cleared before the next login.
type KickEvent struct {
	Uin     uint64
	Title   string
	Message string
}

type kickPush struct {
	proto.UnknownFields
	Uin     uint64 `proto:"1"`
	Title   string `proto:"3"`
	Message string `proto:"4"`
}

func init() {
	Register("trpc.qq_new_tech.status_svc.StatusService.KickNT",
		packet.ProtocolService, packet.EncryptD2Key, auth.ProtocolAll, false,
		func(KickRequest, Context) ([]byte, error) {
			return nil, errs.Build("kick is server-initiated")
		},
		func(data []byte, _ Context) (KickEvent, error) {
			var push kickPush
			if err := proto.Unmarshal(data, &push); err != nil {
				return KickEvent{}, errs.Parse("kick push: %v", err)
			}
			return KickEvent{Uin: push.Uin, Title: push.Title, Message: push.Message}, nil
		},
	)
}
