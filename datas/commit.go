package datas

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

const (
	fieldRoot      protowire.Number = 1
	fieldParent    protowire.Number = 2
	fieldName      protowire.Number = 3
	fieldEmail     protowire.Number = 4
	fieldTimestamp protowire.Number = 5
	fieldMessage   protowire.Number = 6
	fieldHeight    protowire.Number = 7
)

type CommitMeta struct {
	Name      string
	Email     string
	Timestamp time.Time
	Message   string
}

func (m CommitMeta) Author() core.Identity {
	return core.Identity{Name: m.Name, Email: m.Email}
}

type Commit struct {
	Hash    hash.Hash
	Root    hash.Hash
	Parents []hash.Hash
	Meta    CommitMeta
	// Height is one more than the highest parent; the initial commit has height 1.
	Height uint64
}

func encodeCommit(c *Commit) []byte {
	buf := []byte{byte(chunks.KindCommit)}
	buf = protowire.AppendTag(buf, fieldRoot, protowire.BytesType)
	buf = protowire.AppendBytes(buf, c.Root[:])
	for _, p := range c.Parents {
		buf = protowire.AppendTag(buf, fieldParent, protowire.BytesType)
		buf = protowire.AppendBytes(buf, p[:])
	}
	buf = protowire.AppendTag(buf, fieldName, protowire.BytesType)
	buf = protowire.AppendString(buf, c.Meta.Name)
	buf = protowire.AppendTag(buf, fieldEmail, protowire.BytesType)
	buf = protowire.AppendString(buf, c.Meta.Email)
	buf = protowire.AppendTag(buf, fieldTimestamp, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(c.Meta.Timestamp.UnixNano()))
	buf = protowire.AppendTag(buf, fieldMessage, protowire.BytesType)
	buf = protowire.AppendString(buf, c.Meta.Message)
	buf = protowire.AppendTag(buf, fieldHeight, protowire.VarintType)
	buf = protowire.AppendVarint(buf, c.Height)
	return buf
}

func decodeCommit(h hash.Hash, data []byte) (*Commit, error) {
	if chunks.KindOf(data) != chunks.KindCommit {
		return nil, fmt.Errorf("chunk %s is not a commit: %w", h, core.ErrCorruption)
	}
	c := &Commit{Hash: h}
	b := data[1:]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, commitError(h, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, commitError(h, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldRoot, fieldParent:
				ref, err := hash.New(v)
				if err != nil {
					return nil, commitError(h, err)
				}
				if num == fieldRoot {
					c.Root = ref
				} else {
					c.Parents = append(c.Parents, ref)
				}
			case fieldName:
				c.Meta.Name = string(v)
			case fieldEmail:
				c.Meta.Email = string(v)
			case fieldMessage:
				c.Meta.Message = string(v)
			}
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, commitError(h, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldTimestamp:
				c.Meta.Timestamp = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
			case fieldHeight:
				c.Height = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, commitError(h, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if c.Height == 0 {
		return nil, commitError(h, fmt.Errorf("missing height"))
	}
	return c, nil
}

func commitError(h hash.Hash, err error) error {
	return fmt.Errorf("decoding commit %s: %v: %w", h, err, core.ErrCorruption)
}
