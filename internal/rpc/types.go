package rpc

import "encoding/json"

// emptyRequest is used for RPCs that take no parameters.
type emptyRequest struct{}

// NamespaceMetadata is one entry of GetMetadataResponse.Namespaces: a
// label and an opaque, namespace-defined metadata document.
type NamespaceMetadata struct {
	Label    string          `json:"label"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// GetMetadataResponse answers the GetMetadata RPC.
type GetMetadataResponse struct {
	EntityID   []byte              `json:"entity_id"`
	Label      string              `json:"label"`
	Namespaces []NamespaceMetadata `json:"namespaces"`
}

// GetConfigurationResponse answers the GetConfiguration RPC.
type GetConfigurationResponse struct {
	Hosts                     []string `json:"hosts"`
	PropertyMappingNamespaces []string `json:"property_mapping_namespaces"`
}

// ControlMessageKind enumerates the server-push message kinds the
// Messages stream delivers.
type ControlMessageKind string

const (
	KindReloadCa    ControlMessageKind = "reload_ca"
	KindReloadCache ControlMessageKind = "reload_cache"
	KindPing        ControlMessageKind = "ping"
)

// ControlMessage is one item from the Messages stream.
type ControlMessage struct {
	Kind ControlMessageKind `json:"kind"`
}

// GetAccessTokenRequest carries the session cookie header value.
type GetAccessTokenRequest struct {
	Cookie string `json:"cookie"`
}

// GetAccessTokenResponse carries the signed JWT.
type GetAccessTokenResponse struct {
	JWT string `json:"jwt"`
}

// AccessControlRequest is the wire form of an access-control evaluation:
// every ID field uses the 17-byte dynamic encoding.
type AccessControlRequest struct {
	ResourceAttrs   [][]byte `json:"resource_attrs"`
	PeerEntityIDs   [][]byte `json:"peer_entity_ids"`
	PeerEntityAttrs [][]byte `json:"peer_entity_attrs,omitempty"`
	Bearer          string   `json:"bearer,omitempty"`
}

// AccessControlResponse carries the raw outcome value; Value > 0 means
// Allow.
type AccessControlResponse struct {
	Value int64 `json:"value"`
}

// SignCertificateRequest carries a DER-encoded CSR.
type SignCertificateRequest struct {
	CSR []byte `json:"csr"`
}

// SignCertificateResponse carries the signed DER certificate.
type SignCertificateResponse struct {
	Cert []byte `json:"cert"`
}

// PropertyMappingAttribute is one attribute entry within a property.
type PropertyMappingAttribute struct {
	Label string `json:"label"`
	ObjID []byte `json:"obj_id"`
}

// PropertyMappingProperty is one property entry within a namespace.
type PropertyMappingProperty struct {
	Label      string                     `json:"label"`
	Attributes []PropertyMappingAttribute `json:"attributes"`
}

// PropertyMappingNamespace is one namespace entry in the mapping reply.
type PropertyMappingNamespace struct {
	Label      string                    `json:"label"`
	Properties []PropertyMappingProperty `json:"properties"`
}

// GetResourcePropertyMappingsResponse answers the
// GetResourcePropertyMappings RPC.
type GetResourcePropertyMappingsResponse struct {
	Namespaces []PropertyMappingNamespace `json:"namespaces"`
}
