package config

// Directory adapter kinds.
const (
	DirectoryNull   = "null"
	DirectoryLDAP   = "ldap"
	DirectoryStatic = "static"
)

// Directory selects one directory adapter. Only the section named by Kind is used.
type Directory struct {
	Kind   string
	LDAP   LDAP
	Static Static
}

// Static is a directory read from a YAML file, for development and tests.
type Static struct {
	File string
}

// LDAP holds the LDAP/Active Directory settings of the ldap adapter.
type LDAP struct {
	// Host is the LDAP server hostname or IP address.
	Host string
	// Port is the LDAP server port (typically 389 for LDAP, 636 for LDAPS).
	Port int
	// UseSSL enables LDAPS.
	UseSSL bool
	// UseTLS enables StartTLS on a plain connection.
	UseTLS bool
	// SkipVerify skips TLS certificate verification (insecure, for testing only).
	SkipVerify bool
	// BindDN is the service account used for all searches.
	BindDN       string
	BindPassword string
	// BaseDN is the base for user searches.
	BaseDN string
	// UserFilter finds one user, {username} is replaced by the escaped login.
	UserFilter string
	// UserObjectFilter restricts user searches, e.g. "(objectClass=person)".
	UserObjectFilter string
	// GroupBaseDN is the base for group searches.
	GroupBaseDN string
	// GroupFilter finds the groups of a user, {userdn} is replaced by the escaped user DN.
	GroupFilter string
	// GroupObjectFilter restricts group searches, e.g. "(objectClass=groupOfNames)".
	GroupObjectFilter string
	// GroupMemberAttr holds member DNs (member, uniqueMember).
	GroupMemberAttr string
	UsernameAttr    string
	EmailAttr       string
	FirstNameAttr   string
	LastNameAttr    string
	DisplayNameAttr string
	GroupNameAttr   string
	// Timeout in seconds for dial and searches.
	Timeout int
	// SizeLimit caps search results, 0 for the server default.
	SizeLimit int
}

// Login login mapper kinds.
const (
	LoginMapperNull      = "null"
	LoginMapperLogin     = "login"
	LoginMapperAttribute = "attribute"
	LoginMapperOIDC      = "oidc"
)

// Login selects how a login event is mapped to an external user id.
type Login struct {
	Mapper string
	// Attribute names the login attribute holding the external id (attribute mapper).
	Attribute string
	OIDC      OIDC
}

// OIDC configures the ID token mapper.
type OIDC struct {
	Issuer   string
	ClientID string
	// Claim holds the external id, "sub" when empty.
	Claim             string
	SkipClientIDCheck bool
}
