package config

type WorkerKeyStruct struct {
	PersistStatusQueue string
	PersistResultQueue string
	PersistDrawQueue   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistStatusQueue: "persist_status_queue",
	PersistResultQueue: "persist_result_queue",
	PersistDrawQueue:   "persist_draw_queue",
}
