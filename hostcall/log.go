package hostcall

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("mp.hostcall")
