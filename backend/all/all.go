// Package all imports every backend so that registering it is as simple
// as blank-importing this package, the same role the teacher's
// backend/all plays for its own backend set.
package all

import (
	_ "github.com/fsspec/filesystem-spec/backend/cache"
	_ "github.com/fsspec/filesystem-spec/backend/local"
	_ "github.com/fsspec/filesystem-spec/backend/memory"
)
