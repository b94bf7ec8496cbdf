package peer

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("mp.peer")
