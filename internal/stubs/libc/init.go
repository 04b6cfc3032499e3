package libc
