package store

import (
	"bytes"
	"fmt"
	"time"

	oldproto "github.com/golang/protobuf/proto"
	"github.com/user/sctid/internal/sctid"
)

var recordProtoPrefix = []byte{0x53, 0x43, 0x31} // "SC1"

type pbRecord struct {
	ID           string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	ItemID       uint64 `protobuf:"varint,2,opt,name=item_id,json=itemId,proto3" json:"item_id,omitempty"`
	Namespace    string `protobuf:"bytes,3,opt,name=namespace,proto3" json:"namespace,omitempty"`
	Partition    uint32 `protobuf:"varint,4,opt,name=partition,proto3" json:"partition,omitempty"`
	CheckDigit   uint32 `protobuf:"varint,5,opt,name=check_digit,json=checkDigit,proto3" json:"check_digit,omitempty"`
	Status       uint32 `protobuf:"varint,6,opt,name=status,proto3" json:"status,omitempty"`
	Source       string `protobuf:"bytes,7,opt,name=source,proto3" json:"source,omitempty"`
	CreatedAtNs  int64  `protobuf:"varint,8,opt,name=created_at_ns,json=createdAtNs,proto3" json:"created_at_ns,omitempty"`
	ModifiedAtNs int64  `protobuf:"varint,9,opt,name=modified_at_ns,json=modifiedAtNs,proto3" json:"modified_at_ns,omitempty"`
}

func (m *pbRecord) Reset()         { *m = pbRecord{} }
func (m *pbRecord) String() string { return oldproto.CompactTextString(m) }
func (*pbRecord) ProtoMessage()    {}

func encodeRecord(r sctid.Record) ([]byte, error) {
	p := &pbRecord{
		ID:         r.ID,
		ItemID:     r.ItemID,
		Namespace:  r.Namespace,
		Partition:  uint32(r.Category),
		CheckDigit: uint32(r.CheckDigit),
		Status:     uint32(r.Status),
		Source:     r.Source,
	}
	if !r.CreatedAt.IsZero() {
		p.CreatedAtNs = r.CreatedAt.UnixNano()
	}
	if !r.ModifiedAt.IsZero() {
		p.ModifiedAtNs = r.ModifiedAt.UnixNano()
	}
	wire, err := oldproto.Marshal(p)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, recordProtoPrefix...), wire...), nil
}

func decodeRecord(data []byte, out *sctid.Record) error {
	if !bytes.HasPrefix(data, recordProtoPrefix) {
		return fmt.Errorf("decode record: unknown encoding")
	}
	var p pbRecord
	if err := oldproto.Unmarshal(data[len(recordProtoPrefix):], &p); err != nil {
		return fmt.Errorf("unmarshal protobuf record: %w", err)
	}
	*out = sctid.Record{
		ID:         p.ID,
		ItemID:     p.ItemID,
		Namespace:  p.Namespace,
		Category:   sctid.Category(p.Partition),
		CheckDigit: int(p.CheckDigit),
		Status:     sctid.Status(p.Status),
		Source:     p.Source,
	}
	if p.CreatedAtNs != 0 {
		out.CreatedAt = time.Unix(0, p.CreatedAtNs).UTC()
	}
	if p.ModifiedAtNs != 0 {
		out.ModifiedAt = time.Unix(0, p.ModifiedAtNs).UTC()
	}
	return nil
}
