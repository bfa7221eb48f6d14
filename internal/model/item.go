package model

type Item struct {
	ID           int64  `json:"id"`
	CollectionID int64  `json:"collection_id"`
	OwnerID      int64  `json:"owner_id"`
	Title        string `json:"title"`
	FileKey      string `json:"file_key"`
	Uploaded     bool   `json:"uploaded"`
	Mtime        int64  `json:"mtime"`
}

type Collection struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Name    string `json:"name"`
	Hidden  bool   `json:"hidden"`
	Mtime   int64  `json:"mtime"`
}
