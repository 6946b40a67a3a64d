package sqlassets

import _ "embed"

//go:embed schema/isbn/titles.sql
var TitlesSQL string

//go:embed schema/isbn/isbn_prefixes.sql
var PrefixesSQL string

//go:embed schema/isbn/isbns.sql
var IdentifiersSQL string

//go:embed schema/isbn/isbn_audit_log.sql
var AuditLogSQL string
