package remote

// Version is reported in the User-Agent header.
const Version = "1.0.0"
