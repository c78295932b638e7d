package wsrpc

// TagKind identifies what a pending request or subscription is for.
type TagKind int

const (
	TagNone TagKind = iota
	TagHeads
	TagTransferIn
	TagTransferOut
	TagSwapBySender
	TagSwapByRecipient
	TagReceipt
	TagCallSymbol
	TagCallDecimals
)

// Tag is the semantic intent attached to a request id. Token is set only
// for the metadata call kinds.
type Tag struct {
	Kind  TagKind
	Token string
}

func CallSymbol(token string) Tag   { return Tag{Kind: TagCallSymbol, Token: token} }
func CallDecimals(token string) Tag { return Tag{Kind: TagCallDecimals, Token: token} }

// IsSubscription reports whether replies to this tag are subscription acks.
func (t Tag) IsSubscription() bool {
	switch t.Kind {
	case TagHeads, TagTransferIn, TagTransferOut, TagSwapBySender, TagSwapByRecipient:
		return true
	default:
		return false
	}
}

// IsTransfer reports whether pushes for this tag carry Transfer logs.
func (t Tag) IsTransfer() bool {
	return t.Kind == TagTransferIn || t.Kind == TagTransferOut
}

// IsSwap reports whether pushes for this tag carry V2 Swap logs.
func (t Tag) IsSwap() bool {
	return t.Kind == TagSwapBySender || t.Kind == TagSwapByRecipient
}

func (t Tag) String() string {
	switch t.Kind {
	case TagHeads:
		return "heads"
	case TagTransferIn:
		return "tr_in"
	case TagTransferOut:
		return "tr_out"
	case TagSwapBySender:
		return "swap_sender"
	case TagSwapByRecipient:
		return "swap_to"
	case TagReceipt:
		return "receipt"
	case TagCallSymbol:
		return "call_symbol:" + t.Token
	case TagCallDecimals:
		return "call_decimals:" + t.Token
	default:
		return "none"
	}
}
