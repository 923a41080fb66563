package memregion

type regionError string

var _ error = regionError("")

func (err regionError) Error() string {
	return string(err)
}

const (
	ErrInvalidArgument = regionError("invalid argument")
	ErrNoSpace         = regionError("no space left in region")
	ErrClosed          = regionError("region is closed")
)
