// Package index builds cached symbol and structure lookups on top of a
// debug-info provider session.
package index

// SymbolRecord is a public symbol resolved to its module-relative address.
type SymbolRecord struct {
	Name   string `json:"name" msgpack:"name"`
	RVA    uint64 `json:"rva" msgpack:"rva"`
	Size   uint64 `json:"size" msgpack:"size"`
	TypeID uint32 `json:"type_id" msgpack:"type_id"`
}

// StructMember is a data member at a fixed offset inside a structure.
type StructMember struct {
	Name   string `json:"name" msgpack:"name"`
	Offset uint64 `json:"offset" msgpack:"offset"`
	Size   uint64 `json:"size" msgpack:"size"`
	TypeID uint32 `json:"type_id" msgpack:"type_id"`
}

// StructRecord is the layout of a user-defined type. Members are sorted by
// ascending offset.
type StructRecord struct {
	Name    string         `json:"name" msgpack:"name"`
	Size    uint64         `json:"size" msgpack:"size"`
	Members []StructMember `json:"members" msgpack:"members"`
}

// Member returns the first member named name.
func (s StructRecord) Member(name string) (StructMember, bool) {
	for _, m := range s.Members {
		if m.Name == name {
			return m, true
		}
	}
	return StructMember{}, false
}
