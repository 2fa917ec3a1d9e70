package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

// handleAuthenticate moves the session to Authenticated on a valid access
// token. Failure leaves the state untouched so the client can retry on the
// same connection.
func (ctl *Controller) handleAuthenticate(sess *core.Session, env Envelope) {
	var p authenticatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.AccessToken == "" {
		ctl.sendTo(sess, encodeAuthError(env.RequestID, "bad payload"))
		return
	}

	userID, err := ctl.Access.VerifyAccessToken(p.AccessToken)
	if err != nil {
		log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Msg("access token rejected")
		ctl.sendTo(sess, encodeAuthError(env.RequestID, "invalid access token"))
		return
	}

	if err := sess.Authenticate(userID); err != nil {
		ctl.sendTo(sess, encodeAuthError(env.RequestID, err.Error()))
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("user", string(userID)).Msg("authenticated")
	ctl.sendTo(sess, encode(KindAuthOK, env.RequestID, authOKPayload{UserID: userID}))
}
