package syncq

// Version is the current version of the syncq module.
const Version = "1.0.0"
