package wire

// Handshake is the server's initial greeting (protocol v10). The legacy v9
// protocol is not supported.
type Handshake struct {
	ProtocolVersion uint8
	ServerVersion   string
	ConnectionID    uint32
	AuthPluginData  []byte
	CapabilityFlags uint32
	CharacterSet    uint8
	StatusFlags     uint16
	AuthPluginName  string
}

func (h *Handshake) Decode(r *Reader) error {
	h.ProtocolVersion = r.Int1()
	h.ServerVersion = r.StringNull()
	h.ConnectionID = r.Int4()
	h.AuthPluginData = r.Bytes(8)
	r.Skip(1) // filler
	h.CapabilityFlags = uint32(r.Int2())
	if !r.More() {
		return r.Err
	}
	h.CharacterSet = r.Int1()
	h.StatusFlags = r.Int2()
	h.CapabilityFlags |= uint32(r.Int2()) << 16
	if r.Err != nil {
		return r.Err
	}
	var authPluginDataLen uint8
	if h.CapabilityFlags&CapPluginAuth != 0 {
		authPluginDataLen = r.Int1()
	} else {
		r.Skip(1)
	}
	r.Skip(10) // reserved
	if r.Err != nil {
		return r.Err
	}
	if h.CapabilityFlags&CapSecureConnection != 0 {
		n := authPluginDataLen
		if n > 8 {
			n -= 8
		} else {
			n = 13
		}
		if n < 13 {
			n = 13
		}
		h.AuthPluginData = append(h.AuthPluginData, r.Bytes(int(n))...)
	}
	if h.CapabilityFlags&CapPluginAuth != 0 {
		h.AuthPluginName = r.StringNull()
	}
	return r.Err
}

// SSLRequest is sent before upgrading a connection to TLS.
type SSLRequest struct {
	CapabilityFlags uint32
	MaxPacketSize   uint32
	CharacterSet    uint8
}

func (e SSLRequest) Encode(w *Writer) error {
	w.Int4(e.CapabilityFlags | CapProtocol41 | CapSSL)
	w.Int4(e.MaxPacketSize)
	w.Int1(e.CharacterSet)
	w.Write(make([]byte, 23))
	return w.Err
}

// HandshakeResponse41 is the client's credential packet.
type HandshakeResponse41 struct {
	CapabilityFlags uint32
	MaxPacketSize   uint32
	CharacterSet    uint8
	Username        string
	AuthResponse    []byte
	Database        string
	AuthPluginName  string
	ConnectAttrs    map[string]string
}

func (e HandshakeResponse41) Encode(w *Writer) error {
	caps := e.CapabilityFlags | CapProtocol41
	if e.Database != "" {
		caps |= CapConnectWithDB
	}
	if e.AuthPluginName != "" {
		caps |= CapPluginAuth
	}
	if len(e.ConnectAttrs) > 0 {
		caps |= CapConnectAttrs
	}
	w.Int4(caps)
	w.Int4(e.MaxPacketSize)
	w.Int1(e.CharacterSet)
	w.Write(make([]byte, 23))
	w.StringNull(e.Username)
	switch {
	case caps&CapPluginAuthLenencData != 0:
		w.BytesN(e.AuthResponse)
	case caps&CapSecureConnection != 0:
		w.Bytes1(e.AuthResponse)
	default:
		w.BytesNull(e.AuthResponse)
	}
	if caps&CapConnectWithDB != 0 {
		w.StringNull(e.Database)
	}
	if caps&CapPluginAuth != 0 {
		w.StringNull(e.AuthPluginName)
	}
	if caps&CapConnectAttrs != 0 {
		w.IntN(uint64(len(e.ConnectAttrs)))
		for k, v := range e.ConnectAttrs {
			w.StringN(k)
			w.StringN(v)
		}
	}
	return w.Err
}

// AuthMoreData carries extra auth-plugin negotiation data.
type AuthMoreData struct {
	PluginData []byte
}

func (e *AuthMoreData) Decode(r *Reader) error {
	status := r.Int1()
	if r.Err != nil {
		return r.Err
	}
	if status != AuthMoreMarker {
		return ErrMalformed
	}
	e.PluginData = r.BytesEOF()
	return r.Err
}

// AuthSwitchRequest asks the client to switch authentication plugins.
type AuthSwitchRequest struct {
	PluginName string
	PluginData []byte
}

func (e *AuthSwitchRequest) Decode(r *Reader) error {
	status := r.Int1()
	if r.Err != nil {
		return r.Err
	}
	if status != AuthSwitchByte {
		return ErrMalformed
	}
	e.PluginName = r.StringNull()
	e.PluginData = r.BytesEOF()
	return r.Err
}

// AuthSwitchResponse answers an AuthSwitchRequest.
type AuthSwitchResponse struct {
	AuthResponse []byte
}

func (e AuthSwitchResponse) Encode(w *Writer) error {
	w.Write(e.AuthResponse)
	return w.Err
}

// RequestPublicKey asks the server for its RSA public key
// (sha256_password / caching_sha2_password full authentication).
type RequestPublicKey struct{}

func (e RequestPublicKey) Encode(w *Writer) error { return w.Int1(2) }
