package protocol

// SUBSCRIBE (client -> server). Sent first to open a mesh stream and again
// later to move the viewed region.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Center          [3]int `json:"center"`
	Radius          int    `json:"radius"`
	// MaxQueue bounds the per-session send queue; older messages are
	// dropped first when it fills.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	TickRateHz        int   `json:"tick_rate_hz"`
	ChunkSize         int   `json:"chunk_size"`
	BytesPerVertex    int   `json:"bytes_per_vertex"`
	UploadBudgetBytes int64 `json:"upload_budget_bytes"`
}

type CatalogDigests struct {
	BlocksDigest string `json:"blocks_digest"`
	ModelsDigest string `json:"models_digest"`
	// Textures is indexed by MeshMsg.TextureIDs.
	Textures []string `json:"textures"`
}

// CHUNK_MESH (server -> client). Vertex attributes are parallel arrays in
// chunk-local coordinates.
type MeshMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Pos             [3]int       `json:"pos"`
	Handle          uint64       `json:"handle"`
	Positions       [][3]float32 `json:"positions"`
	UVs             [][2]float32 `json:"uvs"`
	Normals         [][3]float32 `json:"normals"`
	TextureIDs      []uint32     `json:"texture_ids"`
	Indices         []uint32     `json:"indices"`
}

// CHUNK_REMOVE (server -> client)
type RemoveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [3]int `json:"pos"`
	Handle          uint64 `json:"handle"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
