package render

import (
	"context"

	"github.com/OFFIS-RIT/schemagraph/pkg/common"
)

// GraphRenderer turns an assembled GraphModel into image (or document) bytes.
//
// Implementations must lay out nodes and edges in the order given by the model
// so identical models yield identical output.
type GraphRenderer interface {
	Render(ctx context.Context, model common.GraphModel) ([]byte, error)
	// ContentType is the MIME type of the bytes returned by Render.
	ContentType() string
	// Extension is the file extension (without dot) matching ContentType.
	Extension() string
}
