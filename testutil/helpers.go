package testutil

// AccountMirrorDDL recreates the Account mirror used by integration tests, with folded
// (unquoted) column names.
const AccountMirrorDDL = `DROP TABLE IF EXISTS account;
CREATE TABLE account (
    id             VARCHAR(18) PRIMARY KEY,
    name           VARCHAR(255),
    isdeleted      BOOLEAN NOT NULL,
    systemmodstamp TIMESTAMP NOT NULL
);`
