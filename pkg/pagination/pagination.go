package pagination

const (
	// DefaultPage is the first page when the caller omits one.
	DefaultPage = 1
	// DefaultPageSize is the standard page size when one is not provided.
	DefaultPageSize = 50
	// MaxPageSize caps how many rows any paged query can request.
	MaxPageSize = 200
)

// Params holds offset pagination inputs from controllers or services.
type Params struct {
	Page     int
	PageSize int
}

// Normalize enforces the configured defaults and maximum page size.
func Normalize(p Params) Params {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Params) Offset() int {
	n := Normalize(p)
	return (n.Page - 1) * n.PageSize
}

// Limit returns the normalized page size.
func (p Params) Limit() int {
	return Normalize(p).PageSize
}
