package id128

// Builtin IDs are Authly's self-describing namespace: a fixed, low-valued
// set of property and attribute identifiers that exist before any
// authority reply populates the property mapping. They are exempt from
// the reserved-range rejection that Parse and Random apply to everything
// else.
var (
	PropertyAuthlyRole = FromUint(Property, 1)

	AttrGetAccessToken = FromUint(Attribute, 1)
	AttrAuthenticate   = FromUint(Attribute, 2)
	AttrApplyDocument  = FromUint(Attribute, 3)

	PropertyEntity            = FromUint(Property, 2)
	PropertyUsername          = FromUint(Property, 3)
	PropertyEmail             = FromUint(Property, 4)
	PropertyPasswordHash      = FromUint(Property, 5)
	PropertyLabel             = FromUint(Property, 6)
	PropertyK8sServiceAccount = FromUint(Property, 7)
	PropertyEntityMembership  = FromUint(Property, 8)
)

var builtinLabels = map[Id128]string{
	PropertyAuthlyRole:        "authly:role",
	AttrGetAccessToken:        "get_access_token",
	AttrAuthenticate:          "authenticate",
	AttrApplyDocument:         "apply_document",
	PropertyEntity:            "entity",
	PropertyUsername:          "username",
	PropertyEmail:             "email",
	PropertyPasswordHash:      "password_hash",
	PropertyLabel:             "label",
	PropertyK8sServiceAccount: "k8s_service_account",
	PropertyEntityMembership:  "entity_membership",
}

// Label returns the builtin name for id, if id is one of the builtin
// constants above.
func Label(id Id128) (string, bool) {
	l, ok := builtinLabels[id]
	return l, ok
}

func isBuiltin(id Id128) bool {
	_, ok := builtinLabels[id]
	return ok
}
