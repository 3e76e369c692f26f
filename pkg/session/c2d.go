package session

// c2dSubscription records the caller's registered inbound-message handler.
type c2dSubscription struct {
	callback C2DMessageFunc
	ctx      any
}

// dispatchC2D implements the C2D Message Adapter (spec.md §4.5): when the
// messenger delivers an incoming message, translate its disposition
// descriptor into caller vocabulary, invoke the caller's callback if one is
// registered, and translate the resulting verdict back into messenger
// vocabulary. If no caller callback is registered, or the descriptor
// cannot be duplicated, the message is released without invoking anything.
func dispatchC2D(sub *c2dSubscription, msg []byte, info *messengerDisposition) Verdict {
	if sub == nil || sub.callback == nil {
		return VerdictReleased
	}

	callerInfo, err := (&DispositionInfo{Source: info.source, MessageID: info.messageID}).clone()
	if err != nil {
		return VerdictReleased
	}

	verdict := sub.callback(msg, callerInfo, sub.ctx)
	return verdictToMessenger(verdict)
}
