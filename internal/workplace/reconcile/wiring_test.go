package reconcile

import (
	"github.com/opendatakr/npscache/internal/authority"
	"github.com/opendatakr/npscache/internal/nps"
)

// The production clients must keep satisfying the coordinator's collaborator
// interfaces.
var (
	_ Authority = (*authority.Client)(nil)
	_ Source    = (*nps.Client)(nil)
)
