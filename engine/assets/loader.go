package assets

import "github.com/spaghettifunk/foveal/engine/renderer/metadata"

type Loader interface {
	// params is loader specific, e.g. *metadata.ImageResourceParams.
	Load(path string, params interface{}) (*metadata.Resource, error)
}
