package file

import (
	"path/filepath"

	"github.com/jsphweid/melodex/model"
	"github.com/pkg/errors"
)

// CreateFileNumMap numbers paths in the order given. Paths are stored
// relative to root so a catalog survives moving the media directory.
func CreateFileNumMap(root string, paths []string) (model.FileNumToMediaPath, error) {
	res := make(model.FileNumToMediaPath, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil, errors.Wrapf(err, "%s is not under %s", p, root)
		}
		res[model.FileNum(i)] = filepath.ToSlash(rel)
	}
	return res, nil
}

func FindFileNum(m model.FileNumToMediaPath, rel string) (model.FileNum, bool) {
	rel = filepath.ToSlash(rel)
	for num, p := range m {
		if p == rel {
			return num, true
		}
	}
	return 0, false
}
