package catalog

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"github.com/jsphweid/melodex/model"
	"github.com/pkg/errors"
)

// A chunk file is a little-endian uint32 index length, the gob-encoded
// ChunkIndex, then the data section: one gob-encoded entry per file number,
// at the byte range the index records for it.

var chunkName = regexp.MustCompile("^[0-9a-fA-F]{8}-([0-9a-fA-F]{4}-){3}[0-9a-fA-F]{12}.dat$")

func IsChunkFile(name string) bool {
	return chunkName.MatchString(name)
}

func encodeEntry(e model.CatalogEntry) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(e); err != nil {
		return nil, errors.Wrapf(err, "could not encode entry %d", e.FileNum)
	}
	return buf.Bytes(), nil
}

// makeChunk writes the given encoded entries, in order, to a new chunk in dir.
func makeChunk(dir string, nums []model.FileNum, encoded [][]byte) (model.ChunkOverview, error) {
	c := model.ChunkOverview{
		Filename: uuid.New().String() + ".dat",
		Start:    nums[0],
		End:      nums[len(nums)-1],
	}

	index := make(model.ChunkIndex, len(nums))
	dataBuf := new(bytes.Buffer)
	for i, num := range nums {
		start := uint32(dataBuf.Len())
		dataBuf.Write(encoded[i])
		index[num] = model.Pair{Start: start, End: uint32(dataBuf.Len())}
	}

	indexBuf := new(bytes.Buffer)
	if err := gob.NewEncoder(indexBuf).Encode(index); err != nil {
		return c, errors.Wrap(err, "error making chunk, couldn't encode index")
	}

	var final bytes.Buffer
	binary.Write(&final, binary.LittleEndian, uint32(indexBuf.Len()))
	final.Write(indexBuf.Bytes())
	final.Write(dataBuf.Bytes())

	path := filepath.Join(dir, c.Filename)
	if err := os.WriteFile(path, final.Bytes(), 0644); err != nil {
		return c, errors.Wrap(err, "write failed for chunk file")
	}
	return c, nil
}

// chunker collects encoded entries and cuts a chunk whenever the pending
// data grows past the preferred size.
type chunker struct {
	dir       string
	preferred int

	nums    []model.FileNum
	encoded [][]byte
	size    int
	made    []model.ChunkOverview
}

func (c *chunker) add(e model.CatalogEntry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	c.nums = append(c.nums, e.FileNum)
	c.encoded = append(c.encoded, data)
	// each index entry is a file number and a pair, roughly 12 bytes
	c.size += len(data) + 12
	if c.size > c.preferred {
		return c.flush()
	}
	return nil
}

func (c *chunker) flush() error {
	if len(c.nums) == 0 {
		return nil
	}
	overview, err := makeChunk(c.dir, c.nums, c.encoded)
	if err != nil {
		return err
	}
	c.made = append(c.made, overview)
	c.nums, c.encoded, c.size = nil, nil, 0
	return nil
}

// ReadIndex reads the index at the start of a chunk and returns it with its
// encoded length. r is left at the start of the data section.
func ReadIndex(r io.Reader) (model.ChunkIndex, uint32, error) {
	var indexLength uint32
	if err := binary.Read(r, binary.LittleEndian, &indexLength); err != nil {
		return nil, 0, errors.Wrap(err, "could not read index length")
	}

	buf := make([]byte, indexLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, 0, errors.Wrap(err, "could not read index")
	}

	var index model.ChunkIndex
	if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&index); err != nil {
		return nil, 0, errors.Wrap(err, "could not decode index")
	}
	return index, indexLength, nil
}

// readEntryAt decodes the entry for num from an open chunk file.
func readEntryAt(f io.ReadSeeker, num model.FileNum) (model.CatalogEntry, error) {
	var e model.CatalogEntry
	index, indexLength, err := ReadIndex(f)
	if err != nil {
		return e, err
	}
	p, ok := index[num]
	if !ok {
		return e, errors.Wrapf(ErrNotFound, "file %d not in chunk", num)
	}

	if _, err := f.Seek(int64(4+indexLength+p.Start), io.SeekStart); err != nil {
		return e, errors.Wrap(err, "could not seek to entry")
	}
	buf := make([]byte, p.End-p.Start)
	if _, err := io.ReadFull(f, buf); err != nil {
		return e, errors.Wrap(err, "could not read entry")
	}
	if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&e); err != nil {
		return e, errors.Wrap(err, "could not decode entry")
	}
	return e, nil
}

// ReadChunk decodes every entry of a chunk file in file number order.
func ReadChunk(path string) ([]model.CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open chunk")
	}
	r := bytes.NewReader(data)
	index, indexLength, err := ReadIndex(r)
	if err != nil {
		return nil, err
	}
	section := data[4+indexLength:]

	res := make([]model.CatalogEntry, 0, len(index))
	for _, num := range sortedNums(index) {
		p := index[num]
		if int(p.End) > len(section) || p.Start > p.End {
			return res, errors.Errorf("entry %d points outside chunk %s", num, path)
		}
		var e model.CatalogEntry
		if err := gob.NewDecoder(bytes.NewReader(section[p.Start:p.End])).Decode(&e); err != nil {
			return res, errors.Wrapf(err, "could not decode entry %d", num)
		}
		res = append(res, e)
	}
	return res, nil
}
