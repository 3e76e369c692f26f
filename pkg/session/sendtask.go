package session

// sendTask is allocated when a send is enqueued and owned by the messenger
// until its completion callback runs. The Send-Task Tracker (this file)
// releases it after invoking the user callback exactly once.
type sendTask struct {
	msg        []byte
	onComplete SendCompleteFunc
	ctx        any
}

// sendTaskRegistry tracks outstanding sendTasks between submission and
// completion so that Controller.Destroy can force-complete any still in
// flight with SendDeviceDestroyed (spec.md §8 scenario 4), something a
// bare closure handed to the messenger cannot do on its own.
type sendTaskRegistry struct {
	nextID  uint64
	pending map[uint64]*sendTask
}

func newSendTaskRegistry() sendTaskRegistry {
	return sendTaskRegistry{pending: make(map[uint64]*sendTask)}
}

// register allocates a new task id and stores t under it.
func (r *sendTaskRegistry) register(t *sendTask) uint64 {
	r.nextID++
	id := r.nextID
	r.pending[id] = t
	return id
}

// complete looks up the task for id, removes it from the registry, and
// invokes its completion callback with result. It is a no-op if id is not
// (or no longer) pending, guaranteeing the callback fires at most once.
func (r *sendTaskRegistry) complete(id uint64, result MessengerResult) {
	t, ok := r.pending[id]
	if !ok {
		return
	}
	delete(r.pending, id)
	t.complete(result)
}

// destroyAll force-completes every still-pending task with
// MessengerResultDestroyed, then empties the registry.
func (r *sendTaskRegistry) destroyAll() {
	for id, t := range r.pending {
		delete(r.pending, id)
		t.complete(MessengerResultDestroyed)
	}
}

// translateMessengerResult maps a messenger-vocabulary completion result
// into the caller vocabulary: MessengerResultDestroyed becomes
// SendDeviceDestroyed, OK/CannotParse/FailSending/Timeout pass through
// identically, and anything unrecognized becomes SendErrorUnknown.
func translateMessengerResult(r MessengerResult) SendResult {
	switch r {
	case MessengerResultOK:
		return SendOK
	case MessengerResultCannotParse:
		return SendCannotParse
	case MessengerResultFailSending:
		return SendFailSending
	case MessengerResultTimeout:
		return SendTimeout
	case MessengerResultDestroyed:
		return SendDeviceDestroyed
	default:
		return SendErrorUnknown
	}
}

// complete invokes the user callback, if present, with the translated
// result and then releases t. It must be called exactly once per task.
func (t *sendTask) complete(result MessengerResult) {
	if t.onComplete != nil {
		t.onComplete(t.msg, translateMessengerResult(result), t.ctx)
	}
}
