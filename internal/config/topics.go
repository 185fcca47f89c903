package config

const (
	// TopicIngestURL carries single URL submissions for ingestion.
	TopicIngestURL = "ingest.url"

	// TopicDocumentIndex carries document ids to chunk and embed.
	TopicDocumentIndex = "document.index"

	// ChannelWorker is the consumer channel shared by all worker processes.
	ChannelWorker = "worker"
)
