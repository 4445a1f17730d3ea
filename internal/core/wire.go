package core

import (
	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for the runtime core.
var ProviderSet = wire.NewSet(
	NewRequeueQueue,
	NewHost,
)
