package couchbase

// Client bundles the Couchbase connection with the record store and lock
// built on top of it
type Client struct {
	connManager *ConnectionManager
	store       *BundleStore
}

// NewClient connects to the cluster and opens bucket
func NewClient(url, username, password, bucket string) (*Client, error) {
	connManager, err := NewConnectionManager(url, username, password, bucket)
	if err != nil {
		return nil, err
	}

	return &Client{
		connManager: connManager,
		store:       NewBundleStore(connManager.GetBucket()),
	}, nil
}

// Close closes the Couchbase connection
func (c *Client) Close() error {
	return c.connManager.Close()
}

// BundleStore returns the store of assembled bundles
func (c *Client) BundleStore() *BundleStore {
	return c.store
}

// ExportLock returns a lock document owned by owner
func (c *Client) ExportLock(owner string) *ExportLock {
	return NewExportLock(c.connManager.GetBucket(), owner)
}
