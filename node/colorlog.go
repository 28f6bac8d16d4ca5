package node

import (
	"fmt"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/netmesh/timesync/wire"
)

// logSent and logReceive print colorized one-line summaries of protocol
// traffic, grounded on the logSent/logReceive helpers in
// ptp/simpleclient/client.go.
func logSent(kind wire.Kind, to wire.Endpoint, msg string, v ...interface{}) {
	log.Infof(color.GreenString("-> %s %s (%s)", kind, to, fmt.Sprintf(msg, v...)))
}

func logReceive(kind wire.Kind, from wire.Endpoint, msg string, v ...interface{}) {
	log.Infof(color.BlueString("<- %s %s (%s)", kind, from, fmt.Sprintf(msg, v...)))
}
