package signal

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// armKeepalive applies the read limit and extends the read deadline on
// every pong.
func (ctl *SignalWSController) armKeepalive(c *WsSignalConn) {
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})
}

func (ctl *SignalWSController) writePing(c *WsSignalConn) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("ping failed")
		return false
	}
	return true
}

func (ctl *SignalWSController) writeClose(c *WsSignalConn) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(ctl.opts.WriteWait))
}
