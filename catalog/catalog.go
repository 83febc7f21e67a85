// Package catalog analyzes a media directory into chunk files on disk and
// reads them back for reporting and serving.
package catalog

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/jsphweid/melodex/constants"
	"github.com/jsphweid/melodex/model"
	"github.com/jsphweid/melodex/util"
	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"
)

var ErrNotFound = errors.New("not in catalog")

func sortedNums[B any](m map[model.FileNum]B) []model.FileNum {
	return util.GetKeys(m)
}

// DeleteAll removes the chunk files and catalog in dir and leaves
// everything else alone.
func DeleteAll(dir string) error {
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "could not read index dir")
	}
	for _, f := range files {
		name := f.Name()
		if IsChunkFile(name) || name == constants.CatalogFile {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return errors.Wrap(err, "could not remove "+name)
			}
		}
	}
	return nil
}

// Build analyzes every file in files and writes the chunks plus the catalog
// to dir, replacing whatever catalog was there. Files are analyzed a.Workers
// at a time but chunked and reported in file number order. progress is
// optional and called after each file.
func Build(ctx context.Context, a *Analyzer, files model.FileNumToMediaPath, dir string, preferredChunkSize int, progress func(done, total int, e model.CatalogEntry)) (*model.Catalog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "could not create index dir")
	}
	if err := DeleteAll(dir); err != nil {
		return nil, err
	}

	workers := a.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ck := &chunker{dir: dir, preferred: preferredChunkSize}
	keys := sortedNums(files)
	done := 0
	// a batch bounds how many analyzed entries wait in memory
	for len(keys) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := util.Min(len(keys), workers*4)
		batch := keys[:n]
		keys = keys[n:]

		entries := make([]model.CatalogEntry, len(batch))
		wg := sizedwaitgroup.New(workers)
		for i, num := range batch {
			wg.Add()
			go func(i int, num model.FileNum) {
				defer wg.Done()
				entries[i] = a.Analyze(ctx, num, files[num])
			}(i, num)
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, e := range entries {
			if err := ck.add(e); err != nil {
				return nil, err
			}
			done++
			if progress != nil {
				progress(done, len(files), e)
			}
		}
	}
	if err := ck.flush(); err != nil {
		return nil, err
	}

	c := &model.Catalog{Chunks: ck.made, Files: files, CreatedAt: time.Now().Unix()}
	if err := util.CreateBinary(filepath.Join(dir, constants.CatalogFile), c); err != nil {
		return nil, err
	}
	return c, nil
}

// Reader answers lookups against a built catalog.
type Reader struct {
	Dir     string
	Catalog *model.Catalog
}

func Open(dir string) (*Reader, error) {
	c, err := util.ReadBinary[model.Catalog](filepath.Join(dir, constants.CatalogFile))
	if err != nil {
		return nil, err
	}
	return &Reader{Dir: dir, Catalog: &c}, nil
}

func (r *Reader) chunkFor(num model.FileNum) (model.ChunkOverview, bool) {
	for _, c := range r.Catalog.Chunks {
		if num >= c.Start && num <= c.End {
			return c, true
		}
	}
	return model.ChunkOverview{}, false
}

func (r *Reader) Entry(num model.FileNum) (model.CatalogEntry, error) {
	c, ok := r.chunkFor(num)
	if !ok {
		return model.CatalogEntry{}, errors.Wrapf(ErrNotFound, "file %d", num)
	}
	f, err := os.Open(filepath.Join(r.Dir, c.Filename))
	if err != nil {
		return model.CatalogEntry{}, errors.Wrap(err, "could not open chunk")
	}
	defer f.Close()
	return readEntryAt(f, num)
}

// Entries returns every entry, in file number order.
func (r *Reader) Entries() ([]model.CatalogEntry, error) {
	var res []model.CatalogEntry
	for _, c := range r.Catalog.Chunks {
		entries, err := ReadChunk(filepath.Join(r.Dir, c.Filename))
		if err != nil {
			return res, err
		}
		res = append(res, entries...)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].FileNum < res[j].FileNum })
	return res, nil
}

type Stats struct {
	Files      int
	Midi       int
	Audio      int
	Failed     int
	WithOnset  int
	Notes      int
	Chunks     int
	TotalBytes int64
	IndexBytes int64
}

func (s Stats) IndexPercent() float32 {
	if s.TotalBytes == 0 {
		return 0
	}
	return float32(s.IndexBytes) / float32(s.TotalBytes)
}

// Report walks the chunk files on disk, so it also notices chunks the
// catalog lost track of.
func Report(dir string) (Stats, error) {
	var s Stats
	files, err := os.ReadDir(dir)
	if err != nil {
		return s, errors.Wrap(err, "could not read index dir")
	}

	for _, file := range files {
		if !IsChunkFile(file.Name()) {
			continue
		}
		path := filepath.Join(dir, file.Name())
		s.Chunks++

		info, err := file.Info()
		if err != nil {
			return s, errors.Wrap(err, "could not get file stats")
		}
		s.TotalBytes += info.Size()

		f, err := os.Open(path)
		if err != nil {
			return s, errors.Wrap(err, "could not open chunk")
		}
		_, indexLength, err := ReadIndex(f)
		f.Close()
		if err != nil {
			return s, err
		}
		s.IndexBytes += int64(indexLength) + 4

		entries, err := ReadChunk(path)
		if err != nil {
			return s, err
		}
		for _, e := range entries {
			s.Files++
			s.Notes += e.NoteCount
			switch {
			case e.Error != "":
				s.Failed++
			case e.Kind == model.KindMidi:
				s.Midi++
			case e.Kind == model.KindAudio:
				s.Audio++
				if e.Onset != nil && e.Onset.HasOnset {
					s.WithOnset++
				}
			}
		}
	}
	return s, nil
}
